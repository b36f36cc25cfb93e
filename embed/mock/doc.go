// Package mock provides a test double implementation of embed.ImageEmbedder.
//
// The mock allows tests and dry runs to exercise the full pipeline without a
// running embedding service. Identical images always embed to identical unit
// vectors, so index alignment and self-query behavior can be asserted.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	vectors, err := embedder.EmbedImages(ctx, images)
//
//	// Custom behavior injection
//	embedder.EmbedImagesFunc = func(ctx context.Context, images []image.Image) ([][]float32, error) {
//	    return nil, errors.New("service down")
//	}
//
//	// Check call counts
//	count := embedder.CallCount()
package mock
