package builder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/index"
)

// Output artifact names, fixed relative to the output directory.
const (
	EmbeddingsFile = "mtg_embeddings.f32bin"
	IndexFile      = "mtg_cards.hnsw"
	MetadataFile   = "mtg_meta.jsonl"
	ManifestFile   = "build_manifest.json"
)

// normTolerance bounds how far a vector's Euclidean norm may drift from
// 1.0 before the assembler renormalizes it.
const normTolerance = 1e-5

// Assembler turns accumulated vectors into the persisted artifact set: raw
// embeddings, ANN index, and order-aligned metadata. Metadata row i and
// index identifier i always refer to the same source record.
type Assembler struct {
	outDir  string
	hnswCfg index.Config
	logger  *slog.Logger
}

// NewAssembler creates an assembler writing into outDir.
func NewAssembler(outDir string, hnswCfg index.Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default().With("component", "assembler")
	}
	return &Assembler{outDir: outDir, hnswCfg: hnswCfg, logger: logger}
}

// AssembleResult reports what the assembler wrote.
type AssembleResult struct {
	Kept         int // vectors retained in the index
	Renormalized int // vectors whose norm drifted beyond tolerance
	Dimension    int
}

// Assemble compacts the accumulator, verifies unit norms, builds the
// index, and writes the embedding, index, and metadata artifacts
// atomically.
func (a *Assembler) Assemble(acc *Accumulator, faces []core.Face) (*AssembleResult, error) {
	packed, positions := acc.Compact()
	if len(positions) == 0 {
		return nil, core.ErrNoVectors
	}
	dim := acc.Dimension()

	renormalized := 0
	for i := range positions {
		row := packed[i*dim : (i+1)*dim]
		norm := euclideanNorm(row)
		if math.Abs(float64(norm)-1.0) <= normTolerance {
			continue
		}
		if norm > 0 {
			inv := 1.0 / norm
			for j := range row {
				row[j] *= inv
			}
		}
		renormalized++
	}
	if renormalized > 0 {
		a.logger.Warn("renormalized drifted vectors", "count", renormalized)
	}

	graph := index.New(a.hnswCfg)
	for i := 0; i < len(positions); i++ {
		if err := graph.Add(int64(i), packed[i*dim:(i+1)*dim]); err != nil {
			return nil, fmt.Errorf("indexing vector %d: %w", i, err)
		}
	}

	var embeddings bytes.Buffer
	if err := binary.Write(&embeddings, binary.LittleEndian, packed); err != nil {
		return nil, fmt.Errorf("encoding embeddings: %w", err)
	}
	if err := cache.WriteAtomic(filepath.Join(a.outDir, EmbeddingsFile), &embeddings); err != nil {
		return nil, err
	}

	if err := graph.Save(filepath.Join(a.outDir, IndexFile)); err != nil {
		return nil, err
	}

	var meta bytes.Buffer
	enc := json.NewEncoder(&meta)
	for _, pos := range positions {
		if err := enc.Encode(faces[pos]); err != nil {
			return nil, fmt.Errorf("encoding metadata for record %d: %w", pos, err)
		}
	}
	if err := cache.WriteAtomic(filepath.Join(a.outDir, MetadataFile), &meta); err != nil {
		return nil, err
	}

	a.logger.Info("artifacts written",
		"vectors", len(positions),
		"dimension", dim,
		"renormalized", renormalized,
		"dir", a.outDir,
	)

	return &AssembleResult{
		Kept:         len(positions),
		Renormalized: renormalized,
		Dimension:    dim,
	}, nil
}

// euclideanNorm returns the L2 norm of vec.
func euclideanNorm(vec []float32) float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sumSquares))
}
