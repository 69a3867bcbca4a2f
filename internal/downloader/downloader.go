package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhanyyudi/onemap-building-sg/internal/keyspace"
	"github.com/dhanyyudi/onemap-building-sg/internal/metrics"
	"github.com/dhanyyudi/onemap-building-sg/internal/models"
	"github.com/dhanyyudi/onemap-building-sg/internal/onemap"
	"github.com/dhanyyudi/onemap-building-sg/internal/sink"
)

// Defaults mirror the production acquisition profile: twenty in-flight postal
// codes, three attempts per initial probe, one flush per thousand keys.
const (
	DefaultWorkers   = 20
	DefaultRetries   = 3
	DefaultBatchSize = 1000
)

// progressEvery is the number of resolved keys between progress log lines.
const progressEvery = 1000

// ErrTimeoutAfterRetries is the permanent failure recorded when every attempt
// for a postal code's initial request timed out.
var ErrTimeoutAfterRetries = errors.New("Timeout after retries")

// SearchAPI is the slice of the OneMap client used by the downloader.
type SearchAPI interface {
	Search(ctx context.Context, postalCode string, page int) (*models.SearchResponse, error)
}

// ErrorSink records permanent failures. Implementations must not block the
// download and must tolerate concurrent calls.
type ErrorSink interface {
	Record(postalCode, reason string)
}

// Summary aggregates the totals of one completed run.
type Summary struct {
	Keys     int // Keys is the number of postal codes that reached a terminal state.
	Complete int // Complete is the number of keys with every page collected.
	Partial  int // Partial is the number of keys that lost at least one page.
	Failed   int // Failed is the number of keys that failed permanently.
	Records  int // Records is the total number of building records flushed.
}

// Downloader acquires the building dataset for a postal code range. The worker
// pool is the admission gate: at most `workers` postal codes are in flight at
// any instant, and a worker releases its slot only once its key is terminal.
type Downloader struct {
	log     *slog.Logger     // Logger for logging download activities
	api     SearchAPI        // OneMap search API client
	sink    sink.Sink        // Durable destination for flushed batches
	errs    ErrorSink        // Append-only log of permanent failures
	metrics *metrics.Metrics // Metrics for tracking download performance

	workers   int // Number of concurrent fetch operations
	retries   int // Attempt budget for the initial request of each key
	batchSize int // Number of resolved keys per flush
}

// New creates a Downloader. Non-positive workers, retries, or batchSize fall
// back to the defaults.
func New(
	log *slog.Logger,
	api SearchAPI,
	out sink.Sink,
	errs ErrorSink,
	appMetrics *metrics.Metrics,
	workers, retries, batchSize int,
) *Downloader {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if retries < 1 {
		retries = DefaultRetries
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	return &Downloader{
		log:       log,
		api:       api,
		sink:      out,
		errs:      errs,
		metrics:   appMetrics,
		workers:   workers,
		retries:   retries,
		batchSize: batchSize,
	}
}

// Run downloads every postal code in the range and blocks until each one has
// reached a terminal outcome and the final flush has completed. Permanent
// per-key failures never abort the run; only a sink failure does, and even
// then every in-flight key is drained to its terminal state first.
func (d *Downloader) Run(ctx context.Context, keys keyspace.Range) (*Summary, error) {
	d.log.InfoContext(ctx, "Starting download",
		"postal_codes", keys.Len(), "workers", d.workers, "batch_size", d.batchSize)

	// submitCtx only gates submission of new keys: a storage failure cancels
	// it so the run surfaces the error after draining in-flight keys instead
	// of grinding through the rest of the range.
	submitCtx, stopSubmitting := context.WithCancel(ctx)
	defer stopSubmitting()

	jobs := make(chan string)
	outcomes := make(chan models.KeyOutcome)

	var wg sync.WaitGroup
	for i := 1; i <= d.workers; i++ {
		wg.Add(1)
		go d.worker(ctx, &wg, jobs, outcomes)
	}

	go func() {
		defer close(jobs)
		for key := range keys.Keys() {
			select {
			case jobs <- key:
			case <-submitCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	acc := newAccumulator(d.sink, d.batchSize)
	summary := &Summary{}
	var flushErr error

	for outcome := range outcomes {
		summary.Keys++
		switch outcome.Status {
		case models.StatusComplete:
			summary.Complete++
		case models.StatusPartial:
			summary.Partial++
		case models.StatusFailed:
			summary.Failed++
		}

		if flushErr == nil {
			flushed, err := acc.Add(ctx, outcome)
			if err != nil {
				flushErr = err
				stopSubmitting()
				d.log.ErrorContext(ctx, "Storage flush failed, draining in-flight keys", "error", err)
			} else {
				summary.Records += flushed
				d.metrics.RecordsFlushed.Add(float64(flushed))
			}
		}

		if summary.Keys%progressEvery == 0 {
			d.log.InfoContext(ctx, "Download progress",
				"resolved", summary.Keys, "total", keys.Len(), "records", summary.Records)
		}
	}

	if flushErr != nil {
		return summary, flushErr
	}

	flushed, err := acc.Flush(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to flush final batch: %w", err)
	}
	summary.Records += flushed
	d.metrics.RecordsFlushed.Add(float64(flushed))

	if err = ctx.Err(); err != nil {
		d.log.WarnContext(ctx, "Download interrupted before the range was exhausted",
			"resolved", summary.Keys, "total", keys.Len())
		return summary, fmt.Errorf("download interrupted: %w", err)
	}

	d.log.InfoContext(ctx, "Download complete",
		"resolved", summary.Keys, "records", summary.Records, "failed", summary.Failed)
	return summary, nil
}

// worker resolves postal codes from the jobs channel until it is closed.
// Holding a pool slot from pick-up to terminal outcome is what enforces the
// concurrency ceiling.
func (d *Downloader) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan string, outcomes chan<- models.KeyOutcome) {
	defer wg.Done()
	for key := range jobs {
		d.metrics.ActiveWorkers.Inc()
		outcome := d.processKey(ctx, key)
		d.metrics.KeysProcessed.WithLabelValues(outcome.Status.String()).Inc()
		d.metrics.ActiveWorkers.Dec()
		outcomes <- outcome
	}
}

// processKey drives one postal code to its single terminal outcome.
func (d *Downloader) processKey(ctx context.Context, key string) models.KeyOutcome {
	outcome := models.KeyOutcome{PostalCode: key}

	first, attempts, err := d.fetchFirstPage(ctx, key)
	outcome.Attempts = attempts
	if err != nil {
		d.errs.Record(key, err.Error())
		d.metrics.APIErrors.Inc()
		outcome.Status = models.StatusFailed
		return outcome
	}

	if first.Found == 0 {
		outcome.Status = models.StatusComplete
		return outcome
	}

	records, pagesLost := d.collectPages(ctx, key, first)
	outcome.Records = records
	if pagesLost > 0 {
		outcome.Status = models.StatusPartial
	} else {
		outcome.Status = models.StatusComplete
	}
	return outcome
}

// fetchFirstPage probes a postal code, retrying timeouts up to the attempt
// budget. Any non-timeout failure is permanent on the attempt it occurs.
func (d *Downloader) fetchFirstPage(ctx context.Context, key string) (*models.SearchResponse, int, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := d.api.Search(ctx, key, 1)
		d.metrics.RequestSeconds.Observe(time.Since(start).Seconds())

		if err == nil {
			return resp, attempt, nil
		}
		if !onemap.IsTimeout(err) {
			return nil, attempt, err
		}
		if attempt == d.retries {
			return nil, attempt, ErrTimeoutAfterRetries
		}
		d.log.DebugContext(ctx, "Search request timed out, retrying",
			"postal_code", key, "attempt", attempt)
	}
}

// collectPages walks every result page of a postal code; page one reuses the
// already-fetched payload. A failing page drops only that page's records and
// is logged against the key, scoped to the page number.
func (d *Downloader) collectPages(ctx context.Context, key string, first *models.SearchResponse) ([]models.BuildingRecord, int) {
	records := appendRecords(nil, first.Results)

	pagesLost := 0
	for page := 2; page <= first.TotalNumPages; page++ {
		resp, err := d.api.Search(ctx, key, page)
		if err != nil {
			if onemap.IsTimeout(err) {
				d.errs.Record(key, fmt.Sprintf("Page %d timeout", page))
			} else {
				d.errs.Record(key, fmt.Sprintf("Page %d: %s", page, err))
			}
			pagesLost++
			continue
		}
		records = appendRecords(records, resp.Results)
	}

	return records, pagesLost
}

func appendRecords(records []models.BuildingRecord, results []models.SearchResult) []models.BuildingRecord {
	for _, item := range results {
		records = append(records, item.Record())
	}
	return records
}
