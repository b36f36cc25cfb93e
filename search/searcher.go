package search

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/mtgindex/builder"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/embed"
	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/index"
)

// Match is one ranked query result: the catalog metadata of a retained
// record and its inner product similarity to the query image.
type Match struct {
	Face  core.Face
	Score float32
}

// Searcher answers image queries against a completed build's artifacts.
type Searcher struct {
	graph    *index.HNSW
	faces    []core.Face
	manifest *builder.Manifest
	embedder embed.ImageEmbedder
	pre      imaging.Preprocessor
	logger   *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithEfSearch overrides the index's search beam width.
func WithEfSearch(ef int) Option {
	return func(s *Searcher) error {
		s.graph.SetEfSearch(ef)
		return nil
	}
}

// Open loads the index, metadata, and manifest from a build output directory
// and prepares queries through the given embedder. The embedder must produce
// vectors of the dimension the index was built with; the query-side
// preprocessing is reconstructed from the manifest so it matches the build.
func Open(dir string, embedder embed.ImageEmbedder, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	manifest, err := builder.LoadManifest(filepath.Join(dir, builder.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	if dim := embedder.Dimension(); dim != manifest.Parameters.EmbeddingDim {
		return nil, fmt.Errorf("%w: model %s produces %d dimensions, index built with %d",
			ErrModelMismatch, embedder.ModelID(), dim, manifest.Parameters.EmbeddingDim)
	}

	graph, err := index.Load(filepath.Join(dir, builder.IndexFile))
	if err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}

	faces, err := builder.LoadMetadata(filepath.Join(dir, builder.MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	if len(faces) != graph.Len() {
		return nil, fmt.Errorf("%w: %d rows, %d index entries",
			ErrMetadataMismatch, len(faces), graph.Len())
	}

	pre := imaging.NewPreprocessor()
	if manifest.Parameters.TargetSize > 0 {
		pre.TargetSize = manifest.Parameters.TargetSize
	}
	if manifest.Parameters.Contrast > 0 {
		pre.Contrast = manifest.Parameters.Contrast
	}

	s := &Searcher{
		graph:    graph,
		faces:    faces,
		manifest: manifest,
		embedder: embedder,
		pre:      pre,
		logger:   slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Manifest returns the manifest of the build the searcher was opened on.
func (s *Searcher) Manifest() *builder.Manifest {
	return s.manifest
}

// Len returns the number of records in the index.
func (s *Searcher) Len() int {
	return s.graph.Len()
}

// Query embeds the image at imagePath and returns up to k matches ranked by
// similarity, best first.
func (s *Searcher) Query(ctx context.Context, imagePath string, k int) ([]Match, error) {
	return s.QueryWithMonitor(ctx, imagePath, k, nil)
}

// QueryWithMonitor runs Query with monitoring. The monitor receives
// callbacks at each stage of the query process.
func (s *Searcher) QueryWithMonitor(ctx context.Context, imagePath string, k int, monitor QueryMonitor) ([]Match, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(imagePath)

	img, err := s.pre.Load(imagePath)
	if err != nil {
		s.logger.Error("error preparing query image", "path", imagePath, "err", err)
		return nil, err
	}
	bounds := img.Bounds()
	monitor.AfterPreprocess(bounds.Dx(), bounds.Dy())

	vectors, err := s.embedder.EmbedImages(ctx, []image.Image{img})
	if err != nil {
		s.logger.Error("error embedding query image", "path", imagePath, "err", err)
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, ErrNoQueryVector
	}
	monitor.AfterEmbedding(len(vectors[0]))

	found, err := s.graph.Search(vectors[0], k)
	if err != nil {
		return nil, err
	}

	results := make([]Match, 0, len(found))
	for _, m := range found {
		if m.ID < 0 || int(m.ID) >= len(s.faces) {
			s.logger.Warn("identifier outside metadata range", "id", m.ID)
			continue
		}
		results = append(results, Match{Face: s.faces[m.ID], Score: m.Score})
	}
	monitor.Finish(results)

	return results, nil
}
