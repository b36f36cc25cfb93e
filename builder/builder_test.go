package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/checkpoint"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/embed/mock"
	"github.com/poiesic/mtgindex/imaging"
	"github.com/poiesic/mtgindex/index"
)

func testFace(i int) core.Face {
	return core.Face{
		Name:       fmt.Sprintf("Card %d", i),
		ScryfallID: fmt.Sprintf("scry-%03d", i),
		FaceID:     fmt.Sprintf("scry-%03d", i),
		Set:        "tst",
		ImageURL:   fmt.Sprintf("https://img.test/cards/%d.png", i),
	}
}

func testConfig(outDir string) *Config {
	return NewConfig(
		WithOutDir(outDir),
		WithBatchSize(3),
		WithTargetSize(64),
		WithDecodeWorkers(2),
	)
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestBuilder_Run_EndToEnd(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	store := newTestStore(t)

	faces := make([]core.Face, 10)
	for i := range faces {
		faces[i] = testFace(i)
	}

	// Seven good images; positions 3 and 7 never cached; position 5 cached
	// as an HTML error page.
	for i := range faces {
		switch i {
		case 3, 7:
		case 5:
			require.NoError(t, store.Write(faces[i].ImageURL, strings.NewReader("<html>rate limited</html>")))
		default:
			require.NoError(t, store.Write(faces[i].ImageURL, bytes.NewReader(cardPNG(t, uint8(i*25)))))
		}
	}

	embedder := mock.NewMockEmbedderWithDim(testDim)
	ckpt, err := checkpoint.OpenInMemory()
	require.NoError(t, err)
	defer ckpt.Close()

	b, err := New(store, embedder, testConfig(outDir),
		WithOutput(io.Discard),
		WithCheckpoint(ckpt),
	)
	require.NoError(t, err)

	result, err := b.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 10, result.Total)
	assert.Equal(t, 2, result.Missing)
	assert.Equal(t, 1, result.Invalid)
	assert.Equal(t, 7, result.Embedded)
	assert.Equal(t, 7, result.IndexSize)
	assert.Zero(t, result.FailedDecode)
	assert.Zero(t, result.FailedEmbed)
	assert.Equal(t, outDir, result.OutDir)

	// A finished build leaves no checkpoint behind.
	count, err := ckpt.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	// Raw embeddings: seven rows of little-endian float32s.
	raw, err := os.ReadFile(filepath.Join(outDir, EmbeddingsFile))
	require.NoError(t, err)
	assert.Equal(t, 7*testDim*4, len(raw))

	// Metadata rows follow catalog order with the failures squeezed out.
	metaRaw, err := os.ReadFile(filepath.Join(outDir, MetadataFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(metaRaw)), "\n")
	require.Len(t, lines, 7)
	keptPositions := []int{0, 1, 2, 4, 6, 8, 9}
	for row, pos := range keptPositions {
		var got core.Face
		require.NoError(t, json.Unmarshal([]byte(lines[row]), &got))
		assert.Equal(t, faces[pos].FaceID, got.FaceID, "row %d", row)
	}

	manifest, err := LoadManifest(filepath.Join(outDir, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, ManifestVersion, manifest.Version)
	assert.Equal(t, 10, manifest.Statistics.TotalRecords)
	assert.Equal(t, 2, manifest.Statistics.MissingFromCache)
	assert.Equal(t, 1, manifest.Statistics.ValidationFailures)
	assert.Equal(t, 7, manifest.Statistics.SuccessfullyEmbedded)
	assert.Equal(t, 3, manifest.Statistics.FailedOrMissing)
	assert.InDelta(t, 70.0, manifest.Statistics.SuccessRatePercent, 0.01)
	assert.Equal(t, "mock", manifest.Parameters.EmbeddingModel)
	assert.Equal(t, testDim, manifest.Parameters.EmbeddingDim)
	assert.Equal(t, index.DefaultM, manifest.Parameters.HNSWM)
	assert.Equal(t, EmbeddingsFile, manifest.Outputs.Embeddings)

	// Self-query: reproducing the build-time preprocessing and embedding
	// must find the record itself.
	graph, err := index.Load(filepath.Join(outDir, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, 7, graph.Len())
	assert.Equal(t, testDim, graph.Dimension())

	pre := imaging.Preprocessor{TargetSize: 64, Contrast: 1.0}
	img, err := pre.Load(store.PathFor(faces[4].ImageURL))
	require.NoError(t, err)
	vecs, err := embedder.EmbedImages(context.Background(), []image.Image{img})
	require.NoError(t, err)

	matches, err := graph.Search(vecs[0], 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// faces[4] lands on row 3 once rows 3 and 5 and 7 drop out.
	assert.Equal(t, int64(3), matches[0].ID)
	assert.GreaterOrEqual(t, matches[0].Score, float32(0.99))
}

func TestBuilder_Run_Resume(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	store := newTestStore(t)

	faces := make([]core.Face, 6)
	for i := range faces {
		faces[i] = testFace(i)
		require.NoError(t, store.Write(faces[i].ImageURL, bytes.NewReader(cardPNG(t, uint8(i*40)))))
	}

	// Vectors flushed by an interrupted earlier run.
	ckpt, err := checkpoint.OpenInMemory()
	require.NoError(t, err)
	defer ckpt.Close()

	resumedVec := make([]float32, testDim)
	resumedVec[0] = 1
	saved := make(map[core.ID][]float32)
	for i := 0; i < 2; i++ {
		saved[faces[i].Key()] = resumedVec
	}
	require.NoError(t, ckpt.SaveVectors(saved))

	cfg := testConfig(outDir)
	cfg.Resume = true

	embedder := mock.NewMockEmbedderWithDim(testDim)
	b, err := New(store, embedder, cfg, WithOutput(io.Discard), WithCheckpoint(ckpt))
	require.NoError(t, err)

	result, err := b.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Resumed)
	assert.Equal(t, 6, result.Embedded)
	assert.Equal(t, 6, result.IndexSize)
	assert.Zero(t, result.Missing)
	// Only the four unsaved records reach the embedder: batches of 3 and 1.
	assert.Equal(t, 2, embedder.CallCount())

	count, err := ckpt.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBuilder_Run_NoRecords(t *testing.T) {
	store := newTestStore(t)
	b, err := New(store, mock.NewMockEmbedderWithDim(testDim),
		testConfig(filepath.Join(t.TempDir(), "out")), WithOutput(io.Discard))
	require.NoError(t, err)

	_, err = b.Run(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrNoRecords)
}

func TestBuilder_Run_NoValidImages(t *testing.T) {
	store := newTestStore(t)
	b, err := New(store, mock.NewMockEmbedderWithDim(testDim),
		testConfig(filepath.Join(t.TempDir(), "out")), WithOutput(io.Discard))
	require.NoError(t, err)

	faces := []core.Face{testFace(0), testFace(1)}
	_, err = b.Run(context.Background(), faces)
	assert.ErrorIs(t, err, core.ErrNoValidImages)
}

func TestBuilder_Run_NoVectors(t *testing.T) {
	store := newTestStore(t)

	faces := []core.Face{testFace(0), testFace(1)}
	for i := range faces {
		require.NoError(t, store.Write(faces[i].ImageURL, bytes.NewReader(cardPNG(t, uint8(100+i)))))
	}

	embedder := mock.NewMockEmbedderWithDim(testDim)
	embedder.EmbedImagesFunc = func(ctx context.Context, images []image.Image) ([][]float32, error) {
		return nil, errors.New("model offline")
	}

	b, err := New(store, embedder, testConfig(filepath.Join(t.TempDir(), "out")),
		WithOutput(io.Discard),
		WithRetryPolicy(noSleepPolicy(1)),
	)
	require.NoError(t, err)

	_, err = b.Run(context.Background(), faces)
	assert.ErrorIs(t, err, core.ErrNoVectors)
}

func TestNew_Validation(t *testing.T) {
	store := newTestStore(t)
	embedder := mock.NewMockEmbedderWithDim(testDim)

	_, err := New(nil, embedder, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = New(store, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = New(store, embedder, NewConfig(WithOutDir("")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OutDir")
}

func TestResult_Print(t *testing.T) {
	result := &Result{
		Total:     10,
		Missing:   2,
		Invalid:   1,
		Embedded:  7,
		IndexSize: 7,
		OutDir:    "mtg_index",
	}

	var buf bytes.Buffer
	result.Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "=== Build Summary ===")
	assert.Contains(t, out, "Embedded: 7 (70.0%)")
	assert.Contains(t, out, "Index size: 7")
}
