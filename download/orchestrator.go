package download

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/fetch"
	"github.com/poiesic/mtgindex/progress"
)

// DefaultWorkers is the download concurrency used when none is configured.
const DefaultWorkers = 16

// reportEvery is the record interval between progress lines.
const reportEvery = 50

// Orchestrator downloads record images in parallel through the cache store.
type Orchestrator struct {
	fetcher *fetch.Client
	store   *cache.Store
	workers int
	out     io.Writer
	logger  *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithWorkers bounds download concurrency.
// Default is DefaultWorkers; values below 1 are raised to 1.
func WithWorkers(workers int) Option {
	return func(o *Orchestrator) error {
		if workers < 1 {
			workers = 1
		}
		o.workers = workers
		return nil
	}
}

// WithOutput redirects progress lines and the final summary.
// Default is os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) error {
		if w == nil {
			w = os.Stderr
		}
		o.out = w
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates a download orchestrator.
func NewOrchestrator(fetcher *fetch.Client, store *cache.Store, opts ...Option) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	o := &Orchestrator{
		fetcher: fetcher,
		store:   store,
		workers: DefaultWorkers,
		out:     os.Stderr,
		logger:  slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// urlGroup is the unit of work: one URL and every record position sharing it.
type urlGroup struct {
	url   string
	faces []int
}

// groupByURL coalesces records sharing an image URL so each URL is fetched
// at most once per run. Groups keep first-appearance order.
func groupByURL(faces []core.Face) []urlGroup {
	index := make(map[string]int, len(faces))
	groups := make([]urlGroup, 0, len(faces))
	for i, face := range faces {
		gi, ok := index[face.ImageURL]
		if !ok {
			gi = len(groups)
			index[face.ImageURL] = gi
			groups = append(groups, urlGroup{url: face.ImageURL})
		}
		groups[gi].faces = append(groups[gi].faces, i)
	}
	return groups
}

// Run attempts every record once, skipping those the cache already
// satisfies. Individual failures are collected, never fatal; records sharing
// a URL share its outcome. Run returns early only when ctx is canceled, in
// which case the summary covers the work completed so far.
func (o *Orchestrator) Run(ctx context.Context, faces []core.Face) (*Summary, error) {
	groups := groupByURL(faces)

	o.logger.Info("starting downloads",
		"records", len(faces),
		"unique_urls", len(groups),
		"workers", o.workers)

	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	summary := &Summary{Total: len(faces)}
	tracker := progress.NewTracker(o.out, len(faces), reportEvery)
	tracker.Start()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	record := func(g urlGroup, outcome Outcome, cause error) {
		mu.Lock()
		switch outcome {
		case OutcomeCached:
			summary.Cached += len(g.faces)
		case OutcomeDownloaded:
			summary.Downloaded += len(g.faces)
		case OutcomeFailed:
			summary.Failed += len(g.faces)
			for _, fi := range g.faces {
				summary.addFailure(Failure{
					Name:   faces[fi].Name,
					FaceID: faces[fi].FaceID,
					URL:    g.url,
					Err:    cause,
				})
			}
			o.logger.Warn("download failed", "url", g.url, "records", len(g.faces), "err", cause)
		}
		mu.Unlock()

		tracker.Increment(len(g.faces))
	}

	for _, g := range groups {
		// Stop admitting work once the run is canceled; in-flight
		// downloads finish on their own.
		if err := ctx.Err(); err != nil {
			wg.Wait()
			tracker.Finish()
			return summary, err
		}

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			outcome, cause := o.fetchOne(ctx, g.url)
			record(g, outcome, cause)
		}); err != nil {
			wg.Done()
			record(g, OutcomeFailed, err)
		}
	}

	wg.Wait()
	tracker.Finish()

	o.logger.Info("downloads finished",
		"cached", summary.Cached,
		"downloaded", summary.Downloaded,
		"failed", summary.Failed)
	summary.Print(o.out)

	return summary, nil
}

// fetchOne resolves one URL to a cache entry.
func (o *Orchestrator) fetchOne(ctx context.Context, url string) (Outcome, error) {
	if o.store.Exists(url) {
		return OutcomeCached, nil
	}

	body, err := o.fetcher.Get(ctx, url)
	if err != nil {
		return OutcomeFailed, err
	}
	defer body.Close()

	if err := o.store.Write(url, body); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeDownloaded, nil
}
