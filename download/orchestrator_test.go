package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mtgindex/cache"
	"github.com/poiesic/mtgindex/core"
	"github.com/poiesic/mtgindex/fetch"
)

// imageServer counts requests per path and serves fake image bytes; paths
// under /missing/ return 404.
type imageServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newImageServer(t *testing.T) *imageServer {
	t.Helper()

	s := &imageServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/missing/") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "image-bytes:%s", r.URL.Path)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *imageServer) totalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, n := range s.hits {
		total += n
	}
	return total
}

func newTestOrchestrator(t *testing.T, dir string) (*Orchestrator, *cache.Store) {
	t.Helper()

	policy := fetch.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond}.
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil })
	fetcher, err := fetch.NewClient(nil, fetch.WithPolicy(policy))
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	store, err := cache.NewStore(dir)
	require.NoError(t, err)

	o, err := NewOrchestrator(fetcher, store, WithWorkers(4), WithOutput(io.Discard))
	require.NoError(t, err)
	return o, store
}

func face(name, id, url string) core.Face {
	return core.Face{Name: name, FaceID: id, ImageURL: url, CardURL: url}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	store, err := cache.NewStore(t.TempDir())
	require.NoError(t, err)
	fetcher, err := fetch.NewClient(nil)
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)

	_, err = NewOrchestrator(nil, store)
	assert.ErrorIs(t, err, ErrFetcherRequired)

	_, err = NewOrchestrator(fetcher, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestOrchestrator_DownloadsAll(t *testing.T) {
	srv := newImageServer(t)
	o, store := newTestOrchestrator(t, t.TempDir())

	faces := make([]core.Face, 5)
	for i := range faces {
		faces[i] = face(fmt.Sprintf("Card %d", i), fmt.Sprintf("id-%d", i),
			fmt.Sprintf("%s/img/%d.jpg", srv.URL, i))
	}

	summary, err := o.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Downloaded)
	assert.Equal(t, 0, summary.Cached)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 5, srv.totalHits())

	for i, f := range faces {
		data, err := os.ReadFile(store.PathFor(f.ImageURL))
		require.NoError(t, err, "record %d should be cached", i)
		assert.Equal(t, fmt.Sprintf("image-bytes:/img/%d.jpg", i), string(data))
	}
}

func TestOrchestrator_SecondRunIsCached(t *testing.T) {
	srv := newImageServer(t)
	o, _ := newTestOrchestrator(t, t.TempDir())

	faces := make([]core.Face, 4)
	for i := range faces {
		faces[i] = face(fmt.Sprintf("Card %d", i), fmt.Sprintf("id-%d", i),
			fmt.Sprintf("%s/img/%d.jpg", srv.URL, i))
	}

	first, err := o.Run(context.Background(), faces)
	require.NoError(t, err)
	assert.Equal(t, 4, first.Downloaded)

	second, err := o.Run(context.Background(), faces)
	require.NoError(t, err)
	assert.Equal(t, 4, second.Cached)
	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 0, second.Failed)

	assert.Equal(t, 4, srv.totalHits(), "second run must not re-fetch")
}

func TestOrchestrator_DeduplicatesURLs(t *testing.T) {
	srv := newImageServer(t)
	o, _ := newTestOrchestrator(t, t.TempDir())

	shared := srv.URL + "/img/shared.jpg"
	faces := []core.Face{
		face("Front", "card-1:face:0", shared),
		face("Back", "card-1:face:1", shared),
		face("Alt", "card-2", shared),
		face("Other", "card-3", srv.URL+"/img/other.jpg"),
	}

	summary, err := o.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Downloaded, "all records share the fetched outcome")
	assert.Equal(t, 2, srv.totalHits(), "shared URL fetched once")
}

func TestOrchestrator_PartitionsOutcomes(t *testing.T) {
	srv := newImageServer(t)
	o, store := newTestOrchestrator(t, t.TempDir())

	precachedURL := srv.URL + "/img/precached.jpg"
	require.NoError(t, store.Write(precachedURL, strings.NewReader("already here")))

	faces := []core.Face{
		face("Precached", "id-0", precachedURL),
		face("Fresh One", "id-1", srv.URL+"/img/fresh1.jpg"),
		face("Fresh Two", "id-2", srv.URL+"/img/fresh2.jpg"),
		face("Gone", "id-3", srv.URL+"/missing/gone.jpg"),
	}

	summary, err := o.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Cached)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, summary.Total, summary.Cached+summary.Downloaded+summary.Failed,
		"outcomes partition the records")

	require.Len(t, summary.Failures, 1)
	f := summary.Failures[0]
	assert.Equal(t, "Gone", f.Name)
	assert.Equal(t, "id-3", f.FaceID)
	assert.Equal(t, srv.URL+"/missing/gone.jpg", f.URL)
	assert.ErrorIs(t, f.Err, fetch.ErrNonRetryable)
}

func TestOrchestrator_BoundsFailureDetails(t *testing.T) {
	srv := newImageServer(t)
	o, _ := newTestOrchestrator(t, t.TempDir())

	faces := make([]core.Face, 300)
	for i := range faces {
		faces[i] = face(fmt.Sprintf("Card %d", i), fmt.Sprintf("id-%d", i),
			fmt.Sprintf("%s/missing/%d.jpg", srv.URL, i))
	}

	summary, err := o.Run(context.Background(), faces)
	require.NoError(t, err)

	assert.Equal(t, 300, summary.Failed, "every failure is counted")
	assert.Len(t, summary.Failures, maxFailureDetails, "details are bounded")
}

func TestOrchestrator_ContextCanceled(t *testing.T) {
	srv := newImageServer(t)
	o, _ := newTestOrchestrator(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	faces := []core.Face{face("Card", "id-0", srv.URL+"/img/0.jpg")}
	summary, err := o.Run(ctx, faces)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Equal(t, 0, summary.Downloaded)
}

func TestSummary_Print(t *testing.T) {
	s := &Summary{Total: 20, Cached: 3, Downloaded: 5, Failed: 12}
	for i := 0; i < 12; i++ {
		s.addFailure(Failure{
			Name:   fmt.Sprintf("Card %d", i),
			FaceID: fmt.Sprintf("id-%d", i),
			URL:    fmt.Sprintf("https://img.example/%d.jpg", i),
			Err:    fmt.Errorf("boom %d", i),
		})
	}

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "Total faces: 20")
	assert.Contains(t, out, "Already cached: 3")
	assert.Contains(t, out, "Downloaded: 5")
	assert.Contains(t, out, "Failed: 12 (60.0%)")
	assert.Contains(t, out, "Card 0")
	assert.Contains(t, out, "... and 2 more failures")
	assert.Contains(t, out, "Success rate: 40.0%")
	assert.NotContains(t, out, "Card 11", "only the first 10 failures are shown")
}

func TestSummary_PrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	(&Summary{}).Print(&buf)

	assert.Contains(t, buf.String(), "Success rate: N/A")
}
