package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dhanyyudi/onemap-building-sg/internal/keyspace"
	"github.com/dhanyyudi/onemap-building-sg/internal/metrics"
	"github.com/dhanyyudi/onemap-building-sg/internal/models"
	"github.com/dhanyyudi/onemap-building-sg/internal/onemap"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutError satisfies net.Error so onemap.IsTimeout classifies it as retryable.
type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeAPI scripts responses per postal code and page, and tracks the number
// of concurrent in-flight requests.
type fakeAPI struct {
	mu       sync.Mutex
	calls    map[string]int // calls per "<key>/<page>"
	delay    time.Duration
	inFlight atomic.Int64
	maxSeen  atomic.Int64

	respond func(postalCode string, page, call int) (*models.SearchResponse, error)
}

func newFakeAPI(respond func(postalCode string, page, call int) (*models.SearchResponse, error)) *fakeAPI {
	return &fakeAPI{calls: make(map[string]int), respond: respond}
}

func (f *fakeAPI) Search(_ context.Context, postalCode string, page int) (*models.SearchResponse, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if current <= seen || f.maxSeen.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls[fmt.Sprintf("%s/%d", postalCode, page)]++
	call := f.calls[fmt.Sprintf("%s/%d", postalCode, page)]
	f.mu.Unlock()

	return f.respond(postalCode, page, call)
}

func (f *fakeAPI) callCount(postalCode string, page int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fmt.Sprintf("%s/%d", postalCode, page)]
}

// memErrSink records failure entries in memory.
type memErrSink struct {
	mu      sync.Mutex
	entries []string
}

func (m *memErrSink) Record(postalCode, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, postalCode+": "+reason)
}

func (m *memErrSink) all() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.entries...)
}

// memSink keeps every flushed batch for inspection.
type memSink struct {
	mu       sync.Mutex
	batches  [][]models.BuildingRecord
	flushErr error
}

func (m *memSink) Flush(_ context.Context, records []models.BuildingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flushErr != nil {
		return m.flushErr
	}
	batch := append([]models.BuildingRecord(nil), records...)
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memSink) Close(_ context.Context) error { return nil }

func (m *memSink) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func newTestDownloader(api SearchAPI, out *memSink, errs *memErrSink, workers, retries, batchSize int) *Downloader {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	appMetrics := metrics.NewMetrics(prometheus.NewRegistry())
	return New(logger, api, out, errs, appMetrics, workers, retries, batchSize)
}

func respondFound(n, pages int) *models.SearchResponse {
	results := make([]models.SearchResult, n)
	for i := range results {
		results[i] = models.SearchResult{BlkNo: fmt.Sprintf("%d", i+1)}
	}
	return &models.SearchResponse{Found: n, TotalNumPages: pages, Results: results}
}

func TestProcessKey(t *testing.T) {
	t.Parallel()

	t.Run("no buildings is a complete success", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
			return &models.SearchResponse{Found: 0}, nil
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "999999")

		assert.Equal(t, models.StatusComplete, outcome.Status)
		assert.Empty(t, outcome.Records)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Empty(t, errs.all())
	})

	t.Run("single page maps every result field", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
			return &models.SearchResponse{
				Found:         2,
				TotalNumPages: 1,
				Results: []models.SearchResult{
					{BlkNo: "35", RoadName: "PRINCE GEORGE'S PARK", Postal: "118411",
						Building: "PRINCE GEORGE'S PARK RESIDENCES", Latitude: "1.2906", Longitude: "103.7810"},
					{BlkNo: "36", Postal: "118411"},
				},
			}, nil
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "118411")

		assert.Equal(t, models.StatusComplete, outcome.Status)
		require.Len(t, outcome.Records, 2)
		assert.Equal(t, models.BuildingRecord{
			BlockNumber: "35",
			Street:      "PRINCE GEORGE'S PARK",
			PostalCode:  "118411",
			Name:        "PRINCE GEORGE'S PARK RESIDENCES",
			Latitude:    "1.2906",
			Longitude:   "103.7810",
		}, outcome.Records[0])
		assert.Empty(t, outcome.Records[1].Name)
		assert.Empty(t, errs.all())
	})

	t.Run("timeouts are retried within the budget", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, page, call int) (*models.SearchResponse, error) {
			if page == 1 && call <= 2 {
				return nil, timeoutError{}
			}
			return respondFound(1, 1), nil
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "018956")

		assert.Equal(t, models.StatusComplete, outcome.Status)
		assert.Equal(t, 3, outcome.Attempts)
		assert.Equal(t, 3, api.callCount("018956", 1))
		require.Len(t, outcome.Records, 1)
		assert.Empty(t, errs.all())
	})

	t.Run("exhausted timeout budget fails permanently", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
			return nil, timeoutError{}
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "018956")

		assert.Equal(t, models.StatusFailed, outcome.Status)
		assert.Equal(t, 3, outcome.Attempts)
		assert.Equal(t, 3, api.callCount("018956", 1))
		assert.Empty(t, outcome.Records)
		assert.Equal(t, []string{"018956: Timeout after retries"}, errs.all())
	})

	t.Run("non-200 status fails immediately without retry", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
			return nil, &onemap.StatusError{Code: 500}
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "018956")

		assert.Equal(t, models.StatusFailed, outcome.Status)
		assert.Equal(t, 1, outcome.Attempts)
		assert.Equal(t, 1, api.callCount("018956", 1))
		assert.Empty(t, outcome.Records)
		assert.Equal(t, []string{"018956: HTTP 500"}, errs.all())
	})

	t.Run("page timeout keeps the other pages", func(t *testing.T) {
		t.Parallel()
		api := newFakeAPI(func(_ string, page, _ int) (*models.SearchResponse, error) {
			switch page {
			case 1:
				return &models.SearchResponse{
					Found:         30,
					TotalNumPages: 3,
					Results:       []models.SearchResult{{BlkNo: "p1"}},
				}, nil
			case 2:
				return nil, timeoutError{}
			default:
				return &models.SearchResponse{Results: []models.SearchResult{{BlkNo: "p3"}}}, nil
			}
		})
		errs := &memErrSink{}
		d := newTestDownloader(api, &memSink{}, errs, 1, 3, 10)

		outcome := d.processKey(t.Context(), "018956")

		assert.Equal(t, models.StatusPartial, outcome.Status)
		require.Len(t, outcome.Records, 2)
		assert.Equal(t, "p1", outcome.Records[0].BlockNumber)
		assert.Equal(t, "p3", outcome.Records[1].BlockNumber)
		assert.Equal(t, []string{"018956: Page 2 timeout"}, errs.all())
	})
}

func TestRun_ConcurrencyCap(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
		return respondFound(1, 1), nil
	})
	api.delay = time.Millisecond

	workers := 5
	d := newTestDownloader(api, &memSink{}, &memErrSink{}, workers, 3, 10)

	summary, err := d.Run(t.Context(), keyspace.Range{Start: 100000, End: 100200})

	require.NoError(t, err)
	assert.Equal(t, 200, summary.Keys)
	assert.LessOrEqual(t, api.maxSeen.Load(), int64(workers))
}

func TestRun_EveryKeyTerminalAndNoRecordLoss(t *testing.T) {
	t.Parallel()

	// Keys ending in 3 fail permanently, keys ending in 7 are empty, the rest
	// produce two records each.
	api := newFakeAPI(func(postalCode string, _, _ int) (*models.SearchResponse, error) {
		switch {
		case strings.HasSuffix(postalCode, "3"):
			return nil, &onemap.StatusError{Code: 503}
		case strings.HasSuffix(postalCode, "7"):
			return &models.SearchResponse{Found: 0}, nil
		default:
			return respondFound(2, 1), nil
		}
	})

	out := &memSink{}
	errs := &memErrSink{}
	d := newTestDownloader(api, out, errs, 4, 3, 10)

	summary, err := d.Run(t.Context(), keyspace.Range{Start: 100000, End: 100035})

	require.NoError(t, err)
	assert.Equal(t, 35, summary.Keys)
	// 4 failed (…03, …13, …23, …33), 3 empty (…07, …17, …27), 28 with 2 records.
	assert.Equal(t, 4, summary.Failed)
	assert.Equal(t, 31, summary.Complete)
	assert.Zero(t, summary.Partial)
	assert.Equal(t, 56, summary.Records)
	assert.Equal(t, 56, out.total(), "flushed total must equal the sum of per-key result sizes")
	assert.Len(t, errs.all(), 4)
}

func TestRun_FlushBoundaries(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
		return respondFound(2, 1), nil
	})

	out := &memSink{}
	d := newTestDownloader(api, out, &memErrSink{}, 1, 3, 10)

	summary, err := d.Run(t.Context(), keyspace.Range{Start: 100000, End: 100035})

	require.NoError(t, err)
	assert.Equal(t, 70, summary.Records)
	// Three full batches of ten keys plus the final flush of the remaining five.
	require.Len(t, out.batches, 4)
	assert.Len(t, out.batches[0], 20)
	assert.Len(t, out.batches[1], 20)
	assert.Len(t, out.batches[2], 20)
	assert.Len(t, out.batches[3], 10)
}

func TestRun_SinkFailureDrainsAndSurfaces(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
		return respondFound(1, 1), nil
	})

	out := &memSink{flushErr: assert.AnError}
	d := newTestDownloader(api, out, &memErrSink{}, 3, 3, 5)

	summary, err := d.Run(t.Context(), keyspace.Range{Start: 100000, End: 100030})

	require.Error(t, err)
	require.ErrorIs(t, err, assert.AnError)
	// The first batch and every in-flight key still reach a terminal outcome
	// before the error surfaces; nothing counts as flushed.
	assert.GreaterOrEqual(t, summary.Keys, 5)
	assert.Zero(t, summary.Records)
}

func TestRun_ContextCancellationStopsSubmission(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	var resolved atomic.Int64
	api := newFakeAPI(func(_ string, _, _ int) (*models.SearchResponse, error) {
		if resolved.Add(1) == 50 {
			cancel()
		}
		return respondFound(1, 1), nil
	})

	d := newTestDownloader(api, &memSink{}, &memErrSink{}, 2, 3, 10)

	summary, err := d.Run(ctx, keyspace.Range{Start: 100000, End: 900000})

	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, summary.Keys, 900000-100000)
	assert.Positive(t, summary.Keys)
}

func TestAccumulator_FlushClearsHeldSet(t *testing.T) {
	t.Parallel()

	out := &memSink{}
	acc := newAccumulator(out, 2)

	flushed, err := acc.Add(t.Context(), models.KeyOutcome{Records: []models.BuildingRecord{{PostalCode: "1"}}})
	require.NoError(t, err)
	assert.Zero(t, flushed)

	flushed, err = acc.Add(t.Context(), models.KeyOutcome{Records: []models.BuildingRecord{{PostalCode: "2"}, {PostalCode: "3"}}})
	require.NoError(t, err)
	assert.Equal(t, 3, flushed)

	// Final flush with nothing held writes nothing.
	flushed, err = acc.Flush(t.Context())
	require.NoError(t, err)
	assert.Zero(t, flushed)
	require.Len(t, out.batches, 1)
}
