package mock

import (
	"context"
	"hash/fnv"
	"image"
	"math"
)

// DefaultDimension is the vector width the mock produces unless configured
// otherwise. It matches the production CLIP ViT-B/32 model.
const DefaultDimension = 512

// MockEmbedder is a test double for embed.ImageEmbedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedImagesFunc is called by EmbedImages if set.
	// If nil, uses default deterministic behavior.
	EmbedImagesFunc func(ctx context.Context, images []image.Image) ([][]float32, error)

	dim       int
	callCount int
}

// NewMockEmbedder creates a mock embedder with default deterministic
// behavior and DefaultDimension-wide vectors.
// Note: Returns concrete type to allow behavior injection and assertions.
func NewMockEmbedder() *MockEmbedder {
	return NewMockEmbedderWithDim(DefaultDimension)
}

// NewMockEmbedderWithDim creates a mock embedder producing vectors of the
// given dimension. Small dimensions keep pipeline tests readable.
func NewMockEmbedderWithDim(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

// EmbedImages generates a deterministic unit vector per image. Nil input
// slots yield nil vectors, mirroring the production contract.
func (m *MockEmbedder) EmbedImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	m.callCount++

	if m.EmbedImagesFunc != nil {
		return m.EmbedImagesFunc(ctx, images)
	}

	vectors := make([][]float32, len(images))
	for i, img := range images {
		if img == nil {
			continue
		}
		vectors[i] = generateDeterministicVector(img, m.dim)
	}
	return vectors, nil
}

// Dimension returns the configured vector width.
func (m *MockEmbedder) Dimension() int {
	return m.dim
}

// ModelID identifies the mock in build manifests.
func (m *MockEmbedder) ModelID() string {
	return "mock"
}

// CallCount returns the number of times EmbedImages was called.
func (m *MockEmbedder) CallCount() int {
	return m.callCount
}

// Reset clears the call count and any injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount = 0
	m.EmbedImagesFunc = nil
}

// generateDeterministicVector creates a unit vector from the image content.
// It hashes the bounds and a coarse pixel grid so the same image always
// produces the same vector and different fixtures diverge.
func generateDeterministicVector(img image.Image, dim int) []float32 {
	h := fnv.New32a()
	b := img.Bounds()
	h.Write([]byte{
		byte(b.Dx() >> 8), byte(b.Dx()),
		byte(b.Dy() >> 8), byte(b.Dy()),
	})
	if b.Dx() > 0 && b.Dy() > 0 {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				px := b.Min.X + b.Dx()*x/8
				py := b.Min.Y + b.Dy()*y/8
				r, g, bl, a := img.At(px, py).RGBA()
				h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8), byte(a >> 8)})
			}
		}
	}
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		// Simple pseudo-random generation based on seed and index
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%2000)/1000.0 - 1.0
	}

	// Normalize to unit length
	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		inv := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= inv
		}
	}

	return vector
}
