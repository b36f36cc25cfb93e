package catalog

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/poiesic/mtgindex/fetch"
)

// DefaultBaseURL is the production catalog API root.
const DefaultBaseURL = "https://api.scryfall.com"

// Client reads card records from the catalog's bulk data API.
type Client struct {
	fetcher *fetch.Client
	baseURL string
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithBaseURL overrides the catalog API root. Used by tests and mirrors.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		c.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// NewClient creates a catalog client on top of a retrying fetch client.
func NewClient(fetcher *fetch.Client, opts ...Option) (*Client, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}

	c := &Client{
		fetcher: fetcher,
		baseURL: DefaultBaseURL,
		logger:  slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BulkDownloadURI resolves a bulk data kind (such as "unique_artwork",
// "default_cards" or "all_cards") to its download URI.
func (c *Client) BulkDownloadURI(ctx context.Context, kind string) (string, error) {
	body, err := c.fetcher.Get(ctx, c.baseURL+"/bulk-data")
	if err != nil {
		return "", fmt.Errorf("listing bulk data: %w", err)
	}
	defer body.Close()

	var listing struct {
		Data []bulkEntry `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&listing); err != nil {
		return "", fmt.Errorf("decoding bulk data listing: %w", err)
	}

	available := make([]string, 0, len(listing.Data))
	for _, entry := range listing.Data {
		if entry.Type == kind {
			return entry.DownloadURI, nil
		}
		available = append(available, entry.Type)
	}

	return "", fmt.Errorf("%w %q (available: %s)",
		ErrUnknownBulkKind, kind, strings.Join(available, ", "))
}

// LoadBulk downloads and decodes the bulk file for kind. The JSON array is
// consumed as a token stream so the whole file never sits in memory at once.
// A positive limit stops decoding after that many cards; 0 loads everything.
func (c *Client) LoadBulk(ctx context.Context, kind string, limit int) ([]Card, error) {
	uri, err := c.BulkDownloadURI(ctx, kind)
	if err != nil {
		return nil, err
	}

	c.logger.Info("downloading bulk data", "kind", kind, "uri", uri)

	body, err := c.fetcher.Get(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("downloading bulk data: %w", err)
	}
	defer body.Close()

	var r io.Reader = body
	if strings.HasSuffix(uri, ".gz") {
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	cards, err := decodeCards(ctx, r, limit)
	if err != nil {
		return nil, err
	}

	c.logger.Info("loaded bulk data", "kind", kind, "cards", len(cards))
	return cards, nil
}

// decodeCards streams a JSON array of card objects.
func decodeCards(ctx context.Context, r io.Reader, limit int) ([]Card, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading bulk array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("bulk data: expected JSON array, got %v", tok)
	}

	var cards []Card
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var card Card
		if err := dec.Decode(&card); err != nil {
			return nil, fmt.Errorf("decoding card %d: %w", len(cards), err)
		}
		cards = append(cards, card)

		if limit > 0 && len(cards) >= limit {
			return cards, nil
		}
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading bulk array end: %w", err)
	}
	return cards, nil
}
