package builder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_WriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build_manifest.json")

	manifest := &Manifest{
		Version:              ManifestVersion,
		Timestamp:            time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
		BuildDurationSeconds: 42.5,
		Parameters: ManifestParameters{
			Kind:               "unique_artwork",
			BatchSize:          64,
			TargetSize:         224,
			Contrast:           1.0,
			EmbeddingModel:     "ViT-B/32",
			EmbeddingDim:       512,
			HNSWM:              32,
			HNSWEfConstruction: 200,
			ValidateCache:      true,
		},
		Statistics: ManifestStatistics{
			TotalRecords:         10,
			MissingFromCache:     2,
			ValidationFailures:   1,
			SuccessfullyEmbedded: 7,
			FailedOrMissing:      3,
			SuccessRatePercent:   70.0,
		},
		Outputs: ManifestOutputs{
			Embeddings: EmbeddingsFile,
			Index:      IndexFile,
			Metadata:   MetadataFile,
		},
	}

	require.NoError(t, manifest.Write(path))

	loaded, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, manifest, loaded)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"build_duration_seconds"`)
	assert.Contains(t, string(raw), `"success_rate_percent"`)
	assert.Contains(t, string(raw), `"hnsw_ef_construction"`)
	assert.Contains(t, string(raw), `"embedding_model"`)
}

func TestLoadManifest_Missing(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
