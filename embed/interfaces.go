package embed

import (
	"context"
	"image"
)

// ImageEmbedder generates vector embeddings from card images.
// Implementations must be safe for use from a single goroutine at a time;
// the pipeline serializes calls through one dispatcher.
type ImageEmbedder interface {
	// EmbedImages generates one embedding per input image. The returned
	// batch has the same length as images; a nil input slot yields a nil
	// vector at the same position, as does any image the model fails on.
	// Non-nil vectors are unit-norm. Returns an error only when the whole
	// batch fails.
	EmbedImages(ctx context.Context, images []image.Image) ([][]float32, error)

	// Dimension returns the width of the vectors this model produces.
	Dimension() int

	// ModelID returns the identifier of the underlying model. It is
	// recorded in the build manifest so an index is never queried with a
	// different model than built it.
	ModelID() string
}
