package clipd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mtgindex/embed"
)

// newSidecar starts a fake service running the given model. embedFn handles
// POST /api/embed; a nil embedFn answers with a null vector per slot.
func newSidecar(t *testing.T, model string, dim int, embedFn http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/model", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": model, "dim": dim})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if embedFn != nil {
		mux.HandleFunc("/api/embed", embedFn)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

func TestNewClient_QueriesModelInfo(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, nil)

	client, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	assert.Equal(t, "ViT-B/32", client.ModelID())
	assert.Equal(t, 4, client.Dimension())
}

func TestNewClient_ModelMismatch(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, nil)

	_, err := NewClient(context.Background(), embed.NewConfig(
		embed.WithHost(srv.URL),
		embed.WithModel("ViT-L/14"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ViT-B/32")
	assert.Contains(t, err.Error(), "ViT-L/14")
}

func TestNewClient_AdoptsServedModel(t *testing.T) {
	srv := newSidecar(t, "ViT-L/14", 768, nil)

	client, err := NewClient(context.Background(), embed.NewConfig(
		embed.WithHost(srv.URL),
		embed.WithModel(""),
	))
	require.NoError(t, err)
	assert.Equal(t, "ViT-L/14", client.ModelID())
	assert.Equal(t, 768, client.Dimension())
}

func TestNewClient_InvalidModelInfo(t *testing.T) {
	srv := newSidecar(t, "", 0, nil)

	_, err := NewClient(context.Background(), embed.NewConfig(
		embed.WithHost(srv.URL),
		embed.WithModel(""),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid model info")
}

func TestNewClient_ServiceDown(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, nil)
	srv.Close()

	_, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	assert.Error(t, err)
}

func TestClient_EmbedImages(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Images []*string `json:"images"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Images, 3)

		// Slot 1 failed to decode upstream and travels as null.
		require.NotNil(t, req.Images[0])
		require.Nil(t, req.Images[1])
		require.NotNil(t, req.Images[2])

		// Payloads are base64 PNG.
		raw, err := base64.StdEncoding.DecodeString(*req.Images[0])
		require.NoError(t, err)
		decoded, err := png.Decode(bytes.NewReader(raw))
		require.NoError(t, err)
		assert.Equal(t, 8, decoded.Bounds().Dx())

		json.NewEncoder(w).Encode(map[string]any{
			"vectors": []any{
				[]float32{1, 0, 0, 0},
				nil,
				[]float32{0, 1, 0, 0},
			},
		})
	})

	client, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	vectors, err := client.EmbedImages(context.Background(), []image.Image{
		testImage(8, 8),
		nil,
		testImage(16, 16),
	})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Equal(t, []float32{1, 0, 0, 0}, vectors[0])
	assert.Nil(t, vectors[1], "null slot stays nil")
	assert.Equal(t, []float32{0, 1, 0, 0}, vectors[2])
}

func TestClient_EmbedImages_CountMismatch(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"vectors": []any{[]float32{1, 0, 0, 0}},
		})
	})

	client, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	_, err = client.EmbedImages(context.Background(), []image.Image{testImage(8, 8), testImage(8, 8)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 1 vectors for 2 images")
}

func TestClient_EmbedImages_WrongDimension(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"vectors": []any{[]float32{1, 0}},
		})
	})

	client, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	_, err = client.EmbedImages(context.Background(), []image.Image{testImage(8, 8)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2, want 4")
}

func TestClient_EmbedImages_ServerError(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	client, err := NewClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	_, err = client.EmbedImages(context.Background(), []image.Image{testImage(8, 8)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_IsHealthy(t *testing.T) {
	srv := newSidecar(t, "ViT-B/32", 4, nil)

	client, err := newClient(context.Background(), embed.NewConfig(embed.WithHost(srv.URL)))
	require.NoError(t, err)

	assert.True(t, client.IsHealthy(context.Background()))

	srv.Close()
	assert.False(t, client.IsHealthy(context.Background()))
}
