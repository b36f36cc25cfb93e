package export

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/poiesic/mtgindex/builder"
	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/core"
)

// Mode selects the vector encoding of an export.
type Mode string

const (
	// ModeFloat32 passes the build vectors through unchanged.
	ModeFloat32 Mode = "float32"

	// ModeInt8 quantizes each component to a signed byte.
	ModeInt8 Mode = "int8"
)

const (
	// Float32File is the raw vector blob written in float32 mode.
	Float32File = "embeddings.f32bin"

	// Int8File is the quantized vector blob written in int8 mode.
	Int8File = "embeddings.i8bin"

	// MetaFile is the combined metadata document written in every mode.
	MetaFile = "meta.json"
)

// int8Scale maps unit-range components onto the full signed byte range.
const int8Scale = 127

// ParseMode converts a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFloat32, ModeInt8:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q (want int8 or float32)", ErrInvalidMode, s)
	}
}

// Meta is the meta.json document consumed by the browser viewer.
type Meta struct {
	Version      string       `json:"version"`
	Quantization Quantization `json:"quantization"`
	Shape        [2]int       `json:"shape"`
	Records      []core.Face  `json:"records"`
}

// Quantization describes how the exported vectors were encoded.
type Quantization struct {
	Dtype         string `json:"dtype"`
	ScaleFactor   int    `json:"scale_factor,omitempty"`
	OriginalDtype string `json:"original_dtype"`
	Note          string `json:"note"`
}

// Result summarizes one export.
type Result struct {
	Mode       Mode
	Records    int
	Dimension  int
	Embeddings string
	Meta       string
}

// Exporter reads a build directory and writes browser artifacts.
type Exporter struct {
	indexDir string
	outDir   string
	logger   *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "export")
		return nil
	}
}

// NewExporter creates an exporter reading the build under indexDir and
// writing under outDir.
func NewExporter(indexDir, outDir string, opts ...Option) (*Exporter, error) {
	if indexDir == "" {
		return nil, ErrIndexDirRequired
	}
	if outDir == "" {
		return nil, ErrOutDirRequired
	}

	e := &Exporter{
		indexDir: indexDir,
		outDir:   outDir,
		logger:   slog.Default().With("component", "export"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Export reads the build artifacts, cross-checks their shapes against the
// manifest, and writes the vector blob for mode plus meta.json. Nothing is
// written when any check fails.
func (e *Exporter) Export(mode Mode) (*Result, error) {
	manifest, err := builder.LoadManifest(filepath.Join(e.indexDir, builder.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	records := manifest.Statistics.SuccessfullyEmbedded
	dim := manifest.Parameters.EmbeddingDim

	raw, err := os.ReadFile(filepath.Join(e.indexDir, manifest.Outputs.Embeddings))
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	if want := records * dim * 4; len(raw) != want {
		return nil, fmt.Errorf("%w: %d bytes, want %d (%d x %d float32)",
			ErrShapeMismatch, len(raw), want, records, dim)
	}

	faces, err := builder.LoadMetadata(filepath.Join(e.indexDir, manifest.Outputs.Metadata))
	if err != nil {
		return nil, fmt.Errorf("loading metadata: %w", err)
	}
	if len(faces) != records {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrRecordMismatch, len(faces), records)
	}

	meta := &Meta{
		Version: builder.ManifestVersion,
		Shape:   [2]int{records, dim},
		Records: faces,
	}

	var blobName string
	var blob []byte
	switch mode {
	case ModeFloat32:
		blobName = Float32File
		blob = raw
		meta.Quantization = Quantization{
			Dtype:         "float32",
			OriginalDtype: "float32",
			Note:          "raw little-endian float32 rows",
		}
	case ModeInt8:
		blobName = Int8File
		blob = quantizeInt8(raw)
		meta.Quantization = Quantization{
			Dtype:         "int8",
			ScaleFactor:   int8Scale,
			OriginalDtype: "float32",
			Note:          "values are round(v*127) clamped to [-127,127]; renormalize after dequantization",
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if err := cache.WriteAtomicBytes(filepath.Join(e.outDir, blobName), blob); err != nil {
		return nil, fmt.Errorf("writing %s: %w", blobName, err)
	}

	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}
	encoded = append(encoded, '\n')
	if err := cache.WriteAtomicBytes(filepath.Join(e.outDir, MetaFile), encoded); err != nil {
		return nil, fmt.Errorf("writing %s: %w", MetaFile, err)
	}

	e.logger.Info("export finished",
		"mode", mode,
		"records", records,
		"dim", dim,
		"bytes", len(blob),
	)

	return &Result{
		Mode:       mode,
		Records:    records,
		Dimension:  dim,
		Embeddings: filepath.Join(e.outDir, blobName),
		Meta:       filepath.Join(e.outDir, MetaFile),
	}, nil
}

// quantizeInt8 maps each component to round(v*127) clamped to [-127, 127],
// one signed byte per component.
func quantizeInt8(raw []byte) []byte {
	out := make([]byte, len(raw)/4)
	for i := range out {
		v := math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		q := math.Round(float64(v) * int8Scale)
		if q > int8Scale {
			q = int8Scale
		} else if q < -int8Scale {
			q = -int8Scale
		}
		out[i] = byte(int8(q))
	}
	return out
}
