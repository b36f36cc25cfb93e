package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mtgindex/fetch"
)

const bulkCardsJSON = `[
  {"id":"aaa-1","name":"Lightning Bolt","set":"lea","collector_number":"161",
   "frame":"1993","layout":"normal","lang":"en","colors":["R"],
   "scryfall_uri":"https://example.com/bolt",
   "image_uris":{"normal":"https://img.example/bolt.jpg"}},
  {"id":"bbb-2","name":"Delver of Secrets // Insectile Aberration","set":"isd",
   "layout":"transform",
   "card_faces":[
     {"name":"Delver of Secrets","image_uris":{"png":"https://img.example/delver.png"}},
     {"name":"Insectile Aberration","image_uris":{"large":"https://img.example/aberration.jpg"}}]}
]`

func newTestFetcher(t *testing.T) *fetch.Client {
	t.Helper()

	policy := fetch.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}.
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })

	c, err := fetch.NewClient(nil, fetch.WithPolicy(policy))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// newBulkServer serves a bulk-data listing pointing at its own /bulk endpoint,
// which responds with body (gzipped when gzipped is true).
func newBulkServer(t *testing.T, kind string, body []byte, gzipped bool) *httptest.Server {
	t.Helper()

	suffix := ""
	if gzipped {
		suffix = ".gz"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bulk-data", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"data":[
			{"type":"oracle_cards","download_uri":"http://%s/other.json"},
			{"type":%q,"download_uri":"http://%s/bulk.json%s"}]}`,
			r.Host, kind, r.Host, suffix)
	})
	mux.HandleFunc("/bulk.json"+suffix, func(w http.ResponseWriter, r *http.Request) {
		if !gzipped {
			w.Write(body)
			return
		}
		gz := gzip.NewWriter(w)
		gz.Write(body)
		gz.Close()
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClient_RequiresFetcher(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrFetcherRequired)
}

func TestClient_BulkDownloadURI(t *testing.T) {
	srv := newBulkServer(t, "unique_artwork", []byte("[]"), false)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	uri, err := client.BulkDownloadURI(context.Background(), "unique_artwork")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(uri, "/bulk.json"), "got %q", uri)
}

func TestClient_BulkDownloadURI_UnknownKind(t *testing.T) {
	srv := newBulkServer(t, "unique_artwork", []byte("[]"), false)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.BulkDownloadURI(context.Background(), "default_cards")
	assert.ErrorIs(t, err, ErrUnknownBulkKind)
	assert.Contains(t, err.Error(), "oracle_cards", "error should name available kinds")
	assert.Contains(t, err.Error(), "unique_artwork")
}

func TestClient_LoadBulk(t *testing.T) {
	srv := newBulkServer(t, "unique_artwork", []byte(bulkCardsJSON), false)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	cards, err := client.LoadBulk(context.Background(), "unique_artwork", 0)
	require.NoError(t, err)
	require.Len(t, cards, 2)

	assert.Equal(t, "Lightning Bolt", cards[0].Name)
	assert.Equal(t, "lea", cards[0].Set)
	require.NotNil(t, cards[0].ImageURIs)
	assert.Equal(t, "https://img.example/bolt.jpg", cards[0].ImageURIs.Normal)

	require.Len(t, cards[1].CardFaces, 2)
	assert.Equal(t, "Delver of Secrets", cards[1].CardFaces[0].Name)
}

func TestClient_LoadBulk_Gzip(t *testing.T) {
	srv := newBulkServer(t, "unique_artwork", []byte(bulkCardsJSON), true)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	cards, err := client.LoadBulk(context.Background(), "unique_artwork", 0)
	require.NoError(t, err)
	assert.Len(t, cards, 2)
}

func TestClient_LoadBulk_Limit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < 5; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, `{"id":"card-%d","name":"Card %d"}`, i, i)
	}
	sb.WriteString("]")

	srv := newBulkServer(t, "all_cards", []byte(sb.String()), false)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	cards, err := client.LoadBulk(context.Background(), "all_cards", 2)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "card-0", cards[0].ID)
	assert.Equal(t, "card-1", cards[1].ID)
}

func TestClient_LoadBulk_NotAnArray(t *testing.T) {
	srv := newBulkServer(t, "unique_artwork", []byte(`{"object":"error"}`), false)

	client, err := NewClient(newTestFetcher(t), WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.LoadBulk(context.Background(), "unique_artwork", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON array")
}

func TestDecodeCards_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := decodeCards(ctx, bytes.NewReader([]byte(bulkCardsJSON)), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
