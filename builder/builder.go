package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/checkpoint"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/embed"
	"github.com/poiesic/mtgindex/fetch"
	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/progress"
)

// Builder runs the full build: partition cached records, decode and embed
// them, and assemble the index artifacts.
type Builder struct {
	store    *cache.Store
	embedder embed.ImageEmbedder
	cfg      *Config
	ckpt     *checkpoint.Store
	policy   fetch.Policy
	out      io.Writer
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger.With("component", "builder")
		return nil
	}
}

// WithOutput sets the destination for progress lines and the build
// summary. Default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(b *Builder) error {
		if w == nil {
			w = os.Stderr
		}
		b.out = w
		return nil
	}
}

// WithCheckpoint sets the store used to flush and resume partial results.
// Without one, interrupted builds restart from scratch.
func WithCheckpoint(store *checkpoint.Store) Option {
	return func(b *Builder) error {
		b.ckpt = store
		return nil
	}
}

// WithRetryPolicy sets the retry schedule for embedding calls.
func WithRetryPolicy(policy fetch.Policy) Option {
	return func(b *Builder) error {
		b.policy = policy
		return nil
	}
}

// New creates a Builder over an existing cache store and embedder.
func New(store *cache.Store, embedder embed.ImageEmbedder, cfg *Config, opts ...Option) (*Builder, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		policy:   fetch.DefaultPolicy(),
		out:      os.Stderr,
		logger:   slog.Default().With("component", "builder"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Result summarizes a completed build.
type Result struct {
	Total        int // catalog records considered
	Missing      int // records with no cached image
	Invalid      int // cached images that failed validation
	Resumed      int // vectors pre-filled from the checkpoint store
	Embedded     int // filled accumulator slots, including resumed
	FailedDecode int
	FailedEmbed  int
	Renormalized int
	IndexSize    int
	Duration     time.Duration
	OutDir       string
}

// Print writes a human-readable build summary to w.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Build Summary ===\n")
	fmt.Fprintf(w, "Total faces: %d\n", r.Total)
	if r.Resumed > 0 {
		fmt.Fprintf(w, "Resumed from checkpoint: %d\n", r.Resumed)
	}
	fmt.Fprintf(w, "Missing from cache: %d\n", r.Missing)
	fmt.Fprintf(w, "Validation failures: %d\n", r.Invalid)
	fmt.Fprintf(w, "Decode failures: %d\n", r.FailedDecode)
	fmt.Fprintf(w, "Embedding failures: %d\n", r.FailedEmbed)
	fmt.Fprintf(w, "Embedded: %d (%s)\n", r.Embedded, progress.Percentage(r.Embedded, r.Total))
	if r.Renormalized > 0 {
		fmt.Fprintf(w, "Renormalized vectors: %d\n", r.Renormalized)
	}
	fmt.Fprintf(w, "Index size: %d\n", r.IndexSize)
	fmt.Fprintf(w, "Build time: %.1fs\n", r.Duration.Seconds())
	fmt.Fprintf(w, "Output: %s\n", r.OutDir)
}

// Run builds the index artifacts for the given records. Individual record
// failures are collected into the Result; Run fails only when there is
// nothing to build from or an artifact cannot be written.
func (b *Builder) Run(ctx context.Context, faces []core.Face) (*Result, error) {
	if len(faces) == 0 {
		return nil, core.ErrNoRecords
	}

	start := time.Now()

	// Vectors saved by an earlier interrupted run.
	var saved map[core.ID][]float32
	if b.cfg.Resume && b.ckpt != nil {
		var err error
		saved, err = b.ckpt.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint: %w", err)
		}
		b.logger.Info("resuming from checkpoint", "vectors", len(saved))
	}

	dim := b.embedder.Dimension()
	acc := NewAccumulator(len(faces), dim)

	result := &Result{Total: len(faces), OutDir: b.cfg.OutDir}
	tasks := make([]Task, 0, len(faces))
	for pos := range faces {
		face := &faces[pos]
		id := face.Key()

		if vec, ok := saved[id]; ok && len(vec) == dim {
			if err := acc.Set(pos, vec); err != nil {
				return nil, err
			}
			result.Resumed++
			continue
		}

		if !b.store.Exists(face.ImageURL) {
			result.Missing++
			continue
		}
		path := b.store.PathFor(face.ImageURL)
		if b.cfg.ValidateCache {
			if err := imaging.Validate(path); err != nil {
				b.logger.Warn("cached image failed validation",
					"face_id", face.FaceID, "path", path, "error", err)
				result.Invalid++
				continue
			}
		}
		tasks = append(tasks, Task{Pos: pos, Path: path, ID: id})
	}

	b.logger.Info("records partitioned",
		"total", result.Total,
		"schedulable", len(tasks),
		"resumed", result.Resumed,
		"missing_from_cache", result.Missing,
		"validation_failures", result.Invalid,
	)

	if len(tasks) == 0 && result.Resumed == 0 {
		return nil, core.ErrNoValidImages
	}

	if len(tasks) > 0 {
		sched, err := NewScheduler(b.embedder, b.cfg, b.ckpt, b.out, b.logger)
		if err != nil {
			return nil, err
		}
		sched.policy = b.policy

		stats, err := sched.Run(ctx, tasks, acc)
		if err != nil {
			return nil, err
		}
		result.FailedDecode = stats.FailedDecode
		result.FailedEmbed = stats.FailedEmbed
	}
	result.Embedded = acc.FilledCount()

	if result.Embedded == 0 {
		return nil, core.ErrNoVectors
	}

	asm := NewAssembler(b.cfg.OutDir, b.cfg.HNSW, b.logger)
	assembled, err := asm.Assemble(acc, faces)
	if err != nil {
		return nil, err
	}
	result.Renormalized = assembled.Renormalized
	result.IndexSize = assembled.Kept
	result.Duration = time.Since(start)

	manifest := b.newManifest(result, dim)
	if err := manifest.Write(filepath.Join(b.cfg.OutDir, ManifestFile)); err != nil {
		return nil, err
	}

	// A finished build makes the checkpoint stale.
	if b.ckpt != nil {
		if err := b.ckpt.Clear(); err != nil {
			b.logger.Warn("clearing checkpoint after successful build", "error", err)
		}
	}

	b.logger.Info("build finished",
		"embedded", result.Embedded,
		"index_size", result.IndexSize,
		"duration", result.Duration,
		"dir", result.OutDir,
	)
	result.Print(b.out)
	return result, nil
}

func (b *Builder) newManifest(result *Result, dim int) *Manifest {
	hnsw := b.cfg.HNSW.WithDefaults()
	return &Manifest{
		Version:              ManifestVersion,
		Timestamp:            time.Now().UTC().Truncate(time.Second),
		BuildDurationSeconds: math.Round(result.Duration.Seconds()*100) / 100,
		Parameters: ManifestParameters{
			Kind:               b.cfg.Kind,
			BatchSize:          b.cfg.BatchSize,
			TargetSize:         b.cfg.TargetSize,
			Contrast:           b.cfg.Contrast,
			EmbeddingModel:     b.embedder.ModelID(),
			EmbeddingDim:       dim,
			HNSWM:              hnsw.M,
			HNSWEfConstruction: hnsw.EfConstruction,
			ValidateCache:      b.cfg.ValidateCache,
		},
		Statistics: ManifestStatistics{
			TotalRecords:         result.Total,
			MissingFromCache:     result.Missing,
			ValidationFailures:   result.Invalid,
			SuccessfullyEmbedded: result.Embedded,
			FailedOrMissing:      result.Total - result.Embedded,
			SuccessRatePercent:   math.Round(float64(result.Embedded)/float64(result.Total)*1000) / 10,
		},
		Outputs: ManifestOutputs{
			Embeddings: EmbeddingsFile,
			Index:      IndexFile,
			Metadata:   MetadataFile,
		},
	}
}
