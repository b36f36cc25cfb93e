// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// mtgindex builds and queries a visual similarity index of Magic: The
// Gathering card images. It downloads the Scryfall bulk catalog, caches
// card images on disk, embeds them through a CLIP sidecar, and assembles
// an HNSW index plus browser-ready artifacts.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/mtgindex/builder"
	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/catalog"
	"github.com/poiesic/mtgindex/checkpoint"
	"github.com/poiesic/mtgindex/download"
	"github.com/poiesic/mtgindex/embed"
	"github.com/poiesic/mtgindex/embed/clipd"
	"github.com/poiesic/mtgindex/embed/mock"
	"github.com/poiesic/mtgindex/export"
	"github.com/poiesic/mtgindex/fetch"
	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/index"
	"github.com/poiesic/mtgindex/search"
)

func main() {
	app := &cli.App{
		Name:  "mtgindex",
		Usage: "Build and query a visual similarity index of MTG card images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "Download the card catalog and populate the image cache",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Scryfall bulk data kind (unique_artwork, default_cards)",
						Value: "unique_artwork",
					},
					&cli.StringFlag{
						Name:  "cache-dir",
						Usage: "Directory holding cached card images",
						Value: "mtg_cache",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of cards to process (0 = no limit)",
						Value: 0,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent download workers",
						Value: download.DefaultWorkers,
					},
					&cli.DurationFlag{
						Name:  "timeout-connect",
						Usage: "TCP connect timeout",
						Value: 5 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "timeout-read",
						Usage: "Per-request read timeout",
						Value: 30 * time.Second,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Retries per request after the first attempt",
						Value: 5,
					},
					&cli.DurationFlag{
						Name:  "base-delay",
						Usage: "Initial retry backoff delay",
						Value: time.Second,
					},
					&cli.DurationFlag{
						Name:  "max-delay",
						Usage: "Maximum retry backoff delay",
						Value: 60 * time.Second,
					},
					&cli.StringFlag{
						Name:  "user-agent",
						Usage: "Override the default User-Agent header",
					},
				},
				Action: downloadCommand,
			},
			{
				Name:  "build",
				Usage: "Embed cached images and assemble the similarity index",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Scryfall bulk data kind (unique_artwork, default_cards)",
						Value: "unique_artwork",
					},
					&cli.StringFlag{
						Name:  "cache-dir",
						Usage: "Directory holding cached card images",
						Value: "mtg_cache",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of cards to process (0 = no limit)",
						Value: 0,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory for index artifacts",
						Value: "mtg_index",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Images per embedding request",
						Value: builder.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "Square edge length images are resized to",
						Value: imaging.DefaultTargetSize,
					},
					&cli.Float64Flag{
						Name:  "contrast",
						Usage: "Contrast factor applied after resizing",
						Value: 1.0,
					},
					&cli.IntFlag{
						Name:  "decode-workers",
						Usage: "Concurrent image decode workers",
						Value: defaultDecodeWorkers(),
					},
					&cli.BoolFlag{
						Name:  "validate-cache",
						Usage: "Validate cached images before embedding",
						Value: true,
					},
					&cli.IntFlag{
						Name:  "hnsw-m",
						Usage: "HNSW connections per node",
						Value: index.DefaultM,
					},
					&cli.IntFlag{
						Name:  "hnsw-ef-construction",
						Usage: "HNSW construction beam width",
						Value: index.DefaultEfConstruction,
					},
					&cli.IntFlag{
						Name:  "checkpoint-frequency",
						Usage: "Vectors between checkpoint flushes (0 disables checkpointing)",
						Value: 500,
					},
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Reuse vectors from a previous interrupted build",
					},
					&cli.StringFlag{
						Name:  "embedder",
						Usage: "Embedding backend (clipd, mock)",
						Value: "clipd",
					},
					&cli.StringFlag{
						Name:  "embed-host",
						Usage: "CLIP sidecar base URL",
						Value: "http://localhost:8000",
					},
					&cli.StringFlag{
						Name:  "embed-model",
						Usage: "Model the sidecar must be serving",
						Value: "ViT-B/32",
					},
				},
				Action: buildCommand,
			},
			{
				Name:  "query",
				Usage: "Find the indexed cards most similar to an image",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "index-dir",
						Usage: "Directory holding index artifacts",
						Value: "mtg_index",
					},
					&cli.StringFlag{
						Name:     "image",
						Usage:    "Path to the query image",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of matches to return",
						Value: 5,
					},
					&cli.IntFlag{
						Name:  "ef-search",
						Usage: "HNSW search beam width",
						Value: index.DefaultEfSearch,
					},
					&cli.StringFlag{
						Name:  "embedder",
						Usage: "Embedding backend (clipd, mock)",
						Value: "clipd",
					},
					&cli.StringFlag{
						Name:  "embed-host",
						Usage: "CLIP sidecar base URL",
						Value: "http://localhost:8000",
					},
					&cli.StringFlag{
						Name:  "embed-model",
						Usage: "Model the sidecar must be serving",
						Value: "ViT-B/32",
					},
				},
				Action: queryCommand,
			},
			{
				Name:  "validate-cache",
				Usage: "Scan the image cache and report undecodable files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "cache-dir",
						Usage: "Directory holding cached card images",
						Value: "mtg_cache",
					},
					&cli.BoolFlag{
						Name:  "fix",
						Usage: "Delete invalid files from the cache",
					},
					&cli.StringFlag{
						Name:  "report",
						Usage: "Write a JSON validation report to this path",
					},
				},
				Action: validateCacheCommand,
			},
			{
				Name:  "export",
				Usage: "Export embeddings and metadata for browser consumption",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "index-dir",
						Usage: "Directory holding index artifacts",
						Value: "mtg_index",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output directory for exported files",
						Value: "mtg_export",
					},
					&cli.StringFlag{
						Name:  "quantize",
						Usage: "Quantization mode (int8, float32)",
						Value: "int8",
					},
				},
				Action: exportCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func downloadCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Validate flags
	if limit := c.Int("limit"); limit < 0 {
		return fmt.Errorf("limit cannot be negative, got %d", limit)
	}
	workers := c.Int("workers")
	if workers < 1 || workers > 128 {
		return fmt.Errorf("workers must be between 1 and 128, got %d", workers)
	}
	fetchCfg := newFetchConfig(c)
	if err := fetchCfg.Validate(); err != nil {
		return err
	}

	// Create transport and cache
	fetcher, err := fetch.NewClient(fetchCfg)
	if err != nil {
		return fmt.Errorf("failed to create fetch client: %w", err)
	}
	defer fetcher.Close()

	store, err := cache.NewStore(c.String("cache-dir"))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	// Load catalog
	cat, err := catalog.NewClient(fetcher)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Catalog kind: %s\n", c.String("kind"))
	fmt.Fprintf(os.Stderr, "Cache directory: %s\n", c.String("cache-dir"))

	cards, err := cat.LoadBulk(ctx, c.String("kind"), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	faces := catalog.Faces(cards)
	fmt.Fprintf(os.Stderr, "Faces to fetch: %d\n\n", len(faces))

	// Download images
	orch, err := download.NewOrchestrator(fetcher, store, download.WithWorkers(workers))
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	summary, err := orch.Run(ctx, faces)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	if summary.Succeeded() == 0 {
		return fmt.Errorf("%d downloads failed", summary.Failed)
	}
	return nil
}

func buildCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Validate flags
	if limit := c.Int("limit"); limit < 0 {
		return fmt.Errorf("limit cannot be negative, got %d", limit)
	}
	m := c.Int("hnsw-m")
	if m < 4 || m > 128 {
		return fmt.Errorf("hnsw-m must be between 4 and 128, got %d", m)
	}
	ef := c.Int("hnsw-ef-construction")
	if ef < 1 || ef > 2000 {
		return fmt.Errorf("hnsw-ef-construction must be between 1 and 2000, got %d", ef)
	}
	if ef < m {
		return fmt.Errorf("hnsw-ef-construction (%d) must be at least hnsw-m (%d)", ef, m)
	}
	if workers := c.Int("decode-workers"); workers < 1 {
		return fmt.Errorf("decode-workers must be at least 1, got %d", workers)
	}

	cfg := builder.NewConfig(
		builder.WithKind(c.String("kind")),
		builder.WithOutDir(c.String("out")),
		builder.WithBatchSize(c.Int("batch-size")),
		builder.WithTargetSize(c.Int("size")),
		builder.WithContrast(c.Float64("contrast")),
		builder.WithDecodeWorkers(c.Int("decode-workers")),
		builder.WithValidateCache(c.Bool("validate-cache")),
		builder.WithCheckpointFrequency(c.Int("checkpoint-frequency")),
		builder.WithResume(c.Bool("resume")),
		builder.WithHNSW(index.Config{M: m, EfConstruction: ef}),
	)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Create embedder first so a missing sidecar is reported before the
	// catalog is downloaded.
	embedder, err := newEmbedder(ctx, c)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Catalog kind: %s\n", cfg.Kind)
	fmt.Fprintf(os.Stderr, "Cache directory: %s\n", c.String("cache-dir"))
	fmt.Fprintf(os.Stderr, "Output directory: %s\n", cfg.OutDir)
	fmt.Fprintf(os.Stderr, "Embedding model: %s (%d dimensions)\n\n", embedder.ModelID(), embedder.Dimension())

	// Load catalog
	fetcher, err := fetch.NewClient(fetch.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to create fetch client: %w", err)
	}
	defer fetcher.Close()

	cat, err := catalog.NewClient(fetcher)
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	cards, err := cat.LoadBulk(ctx, cfg.Kind, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	faces := catalog.Faces(cards)

	// Open cache
	store, err := cache.NewStore(c.String("cache-dir"))
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}

	opts := []builder.Option{}
	if cfg.CheckpointFrequency > 0 || cfg.Resume {
		ckpt, err := checkpoint.Open(filepath.Join(cfg.OutDir, ".checkpoint"))
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer ckpt.Close()
		opts = append(opts, builder.WithCheckpoint(ckpt))
	}

	b, err := builder.New(store, embedder, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create builder: %w", err)
	}

	if _, err := b.Run(ctx, faces); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	// Validate flags
	k := c.Int("top-k")
	if k < 1 {
		return fmt.Errorf("top-k must be at least 1, got %d", k)
	}

	// Create embedder
	embedder, err := newEmbedder(ctx, c)
	if err != nil {
		return err
	}

	// Open index
	searcher, err := search.Open(c.String("index-dir"), embedder, search.WithEfSearch(c.Int("ef-search")))
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}

	matches, err := searcher.Query(ctx, c.String("image"), k)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	for i, match := range matches {
		face := match.Face
		fmt.Printf("%2d. %-40s %s #%s  score=%.4f\n",
			i+1, face.Name, strings.ToUpper(face.Set), face.CollectorNumber, match.Score)
		if face.ScryfallURI != "" {
			fmt.Printf("    %s\n", face.ScryfallURI)
		}
	}
	return nil
}

func validateCacheCommand(c *cli.Context) error {
	dir := c.String("cache-dir")

	report, err := imaging.ValidateDirectory(dir)
	if err != nil {
		return fmt.Errorf("validating cache: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Scanned: %d\n", report.Total)
	fmt.Fprintf(os.Stderr, "Valid: %d\n", report.Valid)
	fmt.Fprintf(os.Stderr, "Invalid: %d\n", report.Invalid)
	for i, failure := range report.Failures {
		if i == 10 {
			fmt.Fprintf(os.Stderr, "  ... and %d more\n", len(report.Failures)-i)
			break
		}
		fmt.Fprintf(os.Stderr, "  %s: %s\n", failure.Path, failure.Reason)
	}

	if path := c.String("report"); path != "" {
		encoded, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		encoded = append(encoded, '\n')
		if err := cache.WriteAtomicBytes(path, encoded); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", path)
	}

	if c.Bool("fix") && report.Invalid > 0 {
		removed := 0
		for _, failure := range report.Failures {
			if err := os.Remove(filepath.Join(dir, failure.Path)); err != nil {
				slog.Warn("error removing invalid file", "path", failure.Path, "error", err)
				continue
			}
			removed++
		}
		fmt.Fprintf(os.Stderr, "Removed %d invalid files\n", removed)
		return nil
	}

	if report.Invalid > 0 {
		return fmt.Errorf("%d invalid files in cache (rerun with --fix to delete them)", report.Invalid)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	// Validate flags
	mode, err := export.ParseMode(c.String("quantize"))
	if err != nil {
		return err
	}

	exporter, err := export.NewExporter(c.String("index-dir"), c.String("out"))
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	result, err := exporter.Export(mode)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d records (%d dimensions) as %s\n", result.Records, result.Dimension, result.Mode)
	fmt.Fprintf(os.Stderr, "  %s\n", result.Embeddings)
	fmt.Fprintf(os.Stderr, "  %s\n", result.Meta)
	return nil
}

// defaultDecodeWorkers is half the CPUs, so decode work does not starve
// the embedding dispatcher.
func defaultDecodeWorkers() int {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return workers
}

// newFetchConfig builds the transport configuration from download flags.
func newFetchConfig(c *cli.Context) *fetch.Config {
	cfg := fetch.DefaultConfig()
	cfg.MaxRetries = c.Int("max-retries")
	cfg.ConnectTimeout = c.Duration("timeout-connect")
	cfg.ReadTimeout = c.Duration("timeout-read")
	cfg.BaseDelay = c.Duration("base-delay")
	cfg.MaxDelay = c.Duration("max-delay")
	if ua := c.String("user-agent"); ua != "" {
		cfg.UserAgent = ua
	}
	return cfg
}

// newEmbedder creates the embedding backend selected by the --embedder flag.
// The clipd backend dials the sidecar immediately so misconfiguration is
// reported before any images are processed.
func newEmbedder(ctx context.Context, c *cli.Context) (embed.ImageEmbedder, error) {
	switch c.String("embedder") {
	case "clipd":
		cfg := embed.NewConfig(
			embed.WithHost(c.String("embed-host")),
			embed.WithModel(c.String("embed-model")),
		)
		return clipd.NewClient(ctx, cfg)
	case "mock":
		return mock.NewMockEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embedder %q: must be clipd or mock", c.String("embedder"))
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
