package builder

import (
	"context"
	"image"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/mtgindex/checkpoint"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/embed"
	"github.com/poiesic/mtgindex/fetch"
	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/progress"
)

// DefaultBatchSize is the number of images per embedding call.
const DefaultBatchSize = 64

// scheduleReportEvery is the progress line interval in records.
const scheduleReportEvery = 50

// Task is one record to decode and embed: the record's accumulator
// position, the cached image path, and the checkpoint key.
type Task struct {
	Pos  int
	Path string
	ID   core.ID
}

// Stats summarizes one scheduler run.
type Stats struct {
	Embedded     int // vectors written to the accumulator
	FailedDecode int // images that would not decode
	FailedEmbed  int // slots the embedder failed after retries
}

// Scheduler keeps the embedder continuously fed with ready batches while
// image decodes proceed in parallel. Decoded images flow through bounded
// channels into a single dispatcher goroutine that owns the embedder, so at
// most roughly decode-workers + 3x batch-size decoded images are live at
// once no matter how slow the embedder is.
type Scheduler struct {
	embedder   embed.ImageEmbedder
	pre        imaging.Preprocessor
	policy     fetch.Policy
	batchSize  int
	workers    int
	ckpt       *checkpoint.Store // nil disables mid-run flushes
	flushEvery int
	out        io.Writer
	logger     *slog.Logger
}

// decodedImage is one preprocessed image tagged with its record position.
// img is nil when the decode failed; the slot still travels through its
// batch so the failure is accounted exactly once.
type decodedImage struct {
	pos int
	id  core.ID
	img image.Image
}

// imageBatch groups decoded images for one embedding call.
type imageBatch struct {
	items []decodedImage
}

// NewScheduler creates a scheduler that embeds through embedder using the
// sizing and checkpoint settings in cfg. out receives progress lines; a
// nil ckpt disables checkpoint flushes.
func NewScheduler(embedder embed.ImageEmbedder, cfg *Config, ckpt *checkpoint.Store, out io.Writer, logger *slog.Logger) (*Scheduler, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if out == nil {
		out = os.Stderr
	}
	if logger == nil {
		logger = slog.Default().With("component", "scheduler")
	}

	pre := imaging.NewPreprocessor()
	if cfg.TargetSize > 0 {
		pre.TargetSize = cfg.TargetSize
	}
	if cfg.Contrast > 0 {
		pre.Contrast = cfg.Contrast
	}

	workers := cfg.DecodeWorkers
	if workers < 1 {
		workers = 1
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	return &Scheduler{
		embedder:   embedder,
		pre:        pre,
		policy:     fetch.DefaultPolicy(),
		batchSize:  batchSize,
		workers:    workers,
		ckpt:       ckpt,
		flushEvery: cfg.CheckpointFrequency,
		out:        out,
		logger:     logger,
	}, nil
}

// Run decodes and embeds every task, writing vectors into acc by task
// position. Completion order is irrelevant: each decoded image carries its
// original position and is written exactly once by that position.
// Per-record failures are counted, never fatal; Run returns an error only
// for pool setup or cancellation.
func (s *Scheduler) Run(ctx context.Context, tasks []Task, acc *Accumulator) (Stats, error) {
	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return Stats{}, err
	}
	defer pool.Release()

	s.logger.Info("starting embedding phase",
		"records", len(tasks),
		"batch_size", s.batchSize,
		"decode_workers", s.workers,
		"model", s.embedder.ModelID(),
	)

	decodedCh := make(chan decodedImage, s.batchSize)
	batchCh := make(chan imageBatch, 1)
	statsCh := make(chan Stats, 1)

	tracker := progress.NewTracker(s.out, len(tasks), scheduleReportEvery)
	tracker.Start()

	go s.assembleBatches(decodedCh, batchCh)
	go s.dispatch(ctx, batchCh, acc, tracker, statsCh)

	// The pool's blocking Submit is the admission gate: decode tasks
	// enter only as workers free up.
	var wg sync.WaitGroup
	var runErr error
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			decodedCh <- decodedImage{pos: task.Pos, id: task.ID, img: s.decode(task.Path)}
		}); err != nil {
			wg.Done()
			decodedCh <- decodedImage{pos: task.Pos, id: task.ID, img: nil}
		}
	}

	wg.Wait()
	close(decodedCh)
	stats := <-statsCh
	tracker.Finish()

	s.logger.Info("embedding phase finished",
		"embedded", stats.Embedded,
		"decode_failures", stats.FailedDecode,
		"embed_failures", stats.FailedEmbed,
	)
	return stats, runErr
}

func (s *Scheduler) decode(path string) image.Image {
	img, err := s.pre.Load(path)
	if err != nil {
		s.logger.Warn("decode failed", "path", path, "error", err)
		return nil
	}
	return img
}

// assembleBatches groups decoded images into embedder-sized batches,
// flushing the trailing partial batch exactly once when the input closes.
func (s *Scheduler) assembleBatches(in <-chan decodedImage, out chan<- imageBatch) {
	defer close(out)

	items := make([]decodedImage, 0, s.batchSize)
	for item := range in {
		items = append(items, item)
		if len(items) == s.batchSize {
			out <- imageBatch{items: items}
			items = make([]decodedImage, 0, s.batchSize)
		}
	}
	if len(items) > 0 {
		out <- imageBatch{items: items}
	}
}

// dispatch is the single goroutine that owns the embedder. It embeds each
// batch under the retry policy, writes vectors into the accumulator, and
// flushes newly filled vectors to the checkpoint store.
func (s *Scheduler) dispatch(ctx context.Context, in <-chan imageBatch, acc *Accumulator, tracker *progress.Tracker, statsCh chan<- Stats) {
	var stats Stats
	pending := make(map[core.ID][]float32)

	for batch := range in {
		if ctx.Err() != nil {
			continue // drain without embedding
		}

		images := make([]image.Image, len(batch.items))
		for i, item := range batch.items {
			images[i] = item.img
			if item.img == nil {
				stats.FailedDecode++
			}
		}

		var vectors [][]float32
		err := s.policy.Do(ctx, func() error {
			var embedErr error
			vectors, embedErr = s.embedder.EmbedImages(ctx, images)
			return embedErr
		})
		if err != nil {
			for _, item := range batch.items {
				if item.img != nil {
					stats.FailedEmbed++
				}
			}
			tracker.Increment(len(batch.items))
			s.logger.Error("embedding batch failed", "size", len(batch.items), "error", err)
			continue
		}

		for i, item := range batch.items {
			if item.img == nil {
				continue
			}
			if i >= len(vectors) || vectors[i] == nil {
				stats.FailedEmbed++
				continue
			}
			if setErr := acc.Set(item.pos, vectors[i]); setErr != nil {
				stats.FailedEmbed++
				s.logger.Error("rejecting embedded vector", "pos", item.pos, "error", setErr)
				continue
			}
			stats.Embedded++

			if s.ckpt != nil && s.flushEvery > 0 {
				pending[item.id] = vectors[i]
				if len(pending) >= s.flushEvery {
					s.flush(pending)
					pending = make(map[core.ID][]float32)
				}
			}
		}
		tracker.Increment(len(batch.items))
	}

	if len(pending) > 0 {
		s.flush(pending)
	}
	statsCh <- stats
}

func (s *Scheduler) flush(pending map[core.ID][]float32) {
	if err := s.ckpt.SaveVectors(pending); err != nil {
		s.logger.Error("error flushing checkpoint", "vectors", len(pending), "error", err)
	}
}
