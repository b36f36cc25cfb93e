package clipd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"

	"github.com/poiesic/mtgindex/embed"
)

// Client implements embed.ImageEmbedder over HTTP.
type Client struct {
	host       string
	httpClient *http.Client
	model      string
	dim        int
	logger     *slog.Logger
}

type modelResponse struct {
	Model string `json:"model"`
	Dim   int    `json:"dim"`
}

// embedRequest carries one batch. A nil entry marshals to JSON null and
// marks a slot whose image failed to decode.
type embedRequest struct {
	Images []*string `json:"images"`
}

// embedResponse mirrors the request positionally; a null vector decodes to
// a nil slice.
type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// newClient is an internal constructor that returns the concrete type.
func newClient(ctx context.Context, config *embed.Config) (*Client, error) {
	if config == nil {
		config = embed.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		host:       config.Host,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     slog.Default().With("component", "clipd-embedder"),
	}

	info, err := c.fetchModel(ctx)
	if err != nil {
		return nil, err
	}
	if config.Model != "" && config.Model != info.Model {
		return nil, fmt.Errorf("embedding service runs model %q, want %q", info.Model, config.Model)
	}

	c.model = info.Model
	c.dim = info.Dim
	c.logger.Info("connected to embedding service", "host", c.host, "model", c.model, "dim", c.dim)

	return c, nil
}

// NewClient connects to the sidecar at config.Host and verifies the served
// model. Returns embed.ImageEmbedder interface to enforce abstraction.
func NewClient(ctx context.Context, config *embed.Config) (embed.ImageEmbedder, error) {
	return newClient(ctx, config)
}

// EmbedImages embeds one batch of images. Nil input slots travel as JSON
// null and come back as nil vectors; positions are preserved throughout.
func (c *Client) EmbedImages(ctx context.Context, images []image.Image) ([][]float32, error) {
	c.logger.Debug("embedding image batch", "count", len(images))

	req := embedRequest{Images: make([]*string, len(images))}
	for i, img := range images {
		if img == nil {
			continue
		}
		encoded, err := encodePNG(img)
		if err != nil {
			return nil, fmt.Errorf("encoding image %d: %w", i, err)
		}
		req.Images[i] = &encoded
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed request: status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	if len(result.Vectors) != len(images) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d images",
			len(result.Vectors), len(images))
	}
	for i, vec := range result.Vectors {
		if vec != nil && len(vec) != c.dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), c.dim)
		}
	}

	return result.Vectors, nil
}

// Dimension returns the vector width reported by the service.
func (c *Client) Dimension() int {
	return c.dim
}

// ModelID returns the model identifier reported by the service.
func (c *Client) ModelID() string {
	return c.model
}

// IsHealthy reports whether the sidecar answers its liveness probe.
func (c *Client) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) fetchModel(ctx context.Context) (modelResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/model", nil)
	if err != nil {
		return modelResponse{}, fmt.Errorf("building model info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return modelResponse{}, fmt.Errorf("querying model info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modelResponse{}, fmt.Errorf("querying model info: status %d", resp.StatusCode)
	}

	var info modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return modelResponse{}, fmt.Errorf("decoding model info: %w", err)
	}
	if info.Model == "" || info.Dim <= 0 {
		return modelResponse{}, fmt.Errorf("embedding service reported invalid model info (model %q, dim %d)",
			info.Model, info.Dim)
	}

	return info, nil
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
