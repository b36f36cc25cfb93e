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

package builder

import (
	"errors"
	"runtime"

	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/index"
)

// Config holds configuration for a build run.
type Config struct {
	// Kind is the bulk catalog kind the records came from, recorded in
	// the manifest. Example: "unique_artwork"
	Kind string

	// OutDir is the directory receiving the build artifacts.
	OutDir string

	// BatchSize is the number of images per embedding call.
	BatchSize int

	// TargetSize is the preprocessed image edge length in pixels.
	TargetSize int

	// Contrast scales contrast around the mean luminance before
	// embedding. 1.0 disables the adjustment.
	Contrast float64

	// DecodeWorkers bounds the number of concurrent image decodes.
	DecodeWorkers int

	// ValidateCache re-checks every cached image before scheduling it.
	ValidateCache bool

	// CheckpointFrequency flushes newly embedded vectors to the
	// checkpoint store every this many records. 0 disables flushing.
	CheckpointFrequency int

	// Resume pre-fills vectors saved by an earlier interrupted run.
	Resume bool

	// HNSW shapes the ANN index. Zero fields take the index defaults.
	HNSW index.Config
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithKind sets the bulk catalog kind recorded in the manifest.
func WithKind(kind string) ConfigOption {
	return func(c *Config) {
		c.Kind = kind
	}
}

// WithOutDir sets the artifact output directory.
func WithOutDir(dir string) ConfigOption {
	return func(c *Config) {
		c.OutDir = dir
	}
}

// WithBatchSize sets the number of images per embedding call.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithTargetSize sets the preprocessed image edge length.
func WithTargetSize(size int) ConfigOption {
	return func(c *Config) {
		c.TargetSize = size
	}
}

// WithContrast sets the contrast enhancement factor.
func WithContrast(factor float64) ConfigOption {
	return func(c *Config) {
		c.Contrast = factor
	}
}

// WithDecodeWorkers sets the concurrent decode bound.
func WithDecodeWorkers(n int) ConfigOption {
	return func(c *Config) {
		c.DecodeWorkers = n
	}
}

// WithValidateCache toggles pre-scheduling validation of cached images.
func WithValidateCache(validate bool) ConfigOption {
	return func(c *Config) {
		c.ValidateCache = validate
	}
}

// WithCheckpointFrequency sets how often embedded vectors are flushed.
func WithCheckpointFrequency(every int) ConfigOption {
	return func(c *Config) {
		c.CheckpointFrequency = every
	}
}

// WithResume enables pre-filling from the checkpoint store.
func WithResume(resume bool) ConfigOption {
	return func(c *Config) {
		c.Resume = resume
	}
}

// WithHNSW sets the ANN index parameters.
func WithHNSW(cfg index.Config) ConfigOption {
	return func(c *Config) {
		c.HNSW = cfg
	}
}

// DefaultConfig returns a Config with sensible defaults for a full
// unique-artwork build.
func DefaultConfig() *Config {
	workers := runtime.NumCPU() / 2
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Kind:                "unique_artwork",
		OutDir:              "mtg_index",
		BatchSize:           DefaultBatchSize,
		TargetSize:          imaging.DefaultTargetSize,
		Contrast:            1.0,
		DecodeWorkers:       workers,
		ValidateCache:       true,
		CheckpointFrequency: 500,
	}
}

// NewConfig creates a Config with the default values and applies the
// provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is valid and complete.
func (c *Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("builder config: OutDir is required")
	}
	if c.BatchSize < 1 {
		return errors.New("builder config: BatchSize must be at least 1")
	}
	if c.TargetSize < 64 {
		return errors.New("builder config: TargetSize must be at least 64")
	}
	if c.Contrast <= 0 {
		return errors.New("builder config: Contrast must be positive")
	}
	if c.DecodeWorkers < 1 {
		return errors.New("builder config: DecodeWorkers must be at least 1")
	}
	if c.CheckpointFrequency != 0 && c.CheckpointFrequency < 100 {
		return errors.New("builder config: CheckpointFrequency must be 0 or at least 100")
	}
	return nil
}
