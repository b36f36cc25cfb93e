package builder

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/poiesic/mtgindex/cache"
)

// ManifestVersion identifies the manifest schema.
const ManifestVersion = "1.0"

// Manifest records what a build produced and how, pinned alongside the
// artifacts as build_manifest.json. The query and export commands read
// preprocessing and shape parameters from here instead of trusting flags.
type Manifest struct {
	Version              string             `json:"version"`
	Timestamp            time.Time          `json:"timestamp"`
	BuildDurationSeconds float64            `json:"build_duration_seconds"`
	Parameters           ManifestParameters `json:"parameters"`
	Statistics           ManifestStatistics `json:"statistics"`
	Outputs              ManifestOutputs    `json:"outputs"`
}

// ManifestParameters are the run parameters needed to reproduce or query
// the build.
type ManifestParameters struct {
	Kind               string  `json:"kind"`
	BatchSize          int     `json:"batch_size"`
	TargetSize         int     `json:"target_size"`
	Contrast           float64 `json:"contrast"`
	EmbeddingModel     string  `json:"embedding_model"`
	EmbeddingDim       int     `json:"embedding_dim"`
	HNSWM              int     `json:"hnsw_m"`
	HNSWEfConstruction int     `json:"hnsw_ef_construction"`
	ValidateCache      bool    `json:"validate_cache"`
}

// ManifestStatistics count record outcomes for the run.
type ManifestStatistics struct {
	TotalRecords         int     `json:"total_records"`
	MissingFromCache     int     `json:"missing_from_cache"`
	ValidationFailures   int     `json:"validation_failures"`
	SuccessfullyEmbedded int     `json:"successfully_embedded"`
	FailedOrMissing      int     `json:"failed_or_missing"`
	SuccessRatePercent   float64 `json:"success_rate_percent"`
}

// ManifestOutputs names the artifact files relative to the manifest.
type ManifestOutputs struct {
	Embeddings string `json:"embeddings"`
	Index      string `json:"index"`
	Metadata   string `json:"metadata"`
}

// Write stores the manifest at path atomically.
func (m *Manifest) Write(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return cache.WriteAtomicBytes(path, append(data, '\n'))
}

// LoadManifest reads a manifest written by Write.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &m, nil
}
