package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/animal-etl/pkg/chunk"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/extract"
	"github.com/Sternrassler/animal-etl/pkg/logging"
	"github.com/Sternrassler/animal-etl/pkg/transform"
)

// Prometheus metrics for batch loading.
var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_batches_total",
		Help: "Submitted batches by result (sent, rejected, failed)",
	}, []string{"result"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "animal_run_duration_seconds",
		Help:    "Duration of full ETL runs in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)

// Config holds the orchestrator configuration, supplied at construction.
type Config struct {
	// UpstreamBaseURL hosts the listing and record endpoints.
	UpstreamBaseURL string

	// SinkBaseURL hosts the batch receiver. May equal UpstreamBaseURL.
	SinkBaseURL string

	// BatchSize is the maximum records per submitted batch.
	BatchSize int

	// FetchConcurrency caps simultaneous record fetches across the whole run.
	FetchConcurrency int
}

// DefaultConfig returns the standard orchestrator configuration.
func DefaultConfig(upstreamURL, sinkURL string) Config {
	return Config{
		UpstreamBaseURL:  upstreamURL,
		SinkBaseURL:      sinkURL,
		BatchSize:        100,
		FetchConcurrency: 10,
	}
}

// Summary reports what one run accomplished. Records are never dropped
// silently: every discovered id ends up in either the posted or failed count.
type Summary struct {
	RunID           string  `json:"run_id"`
	Pages           int     `json:"pages"`
	PagesFailed     int     `json:"pages_failed"`
	IDsFound        int     `json:"ids_found"`
	RecordsFetched  int     `json:"records_fetched"`
	RecordsPosted   int     `json:"records_posted"`
	RecordsFailed   int     `json:"records_failed"`
	BatchesSent     int     `json:"batches_sent"`
	BatchesFailed   int     `json:"batches_failed"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Runner is the top-level ETL driver. Each run walks the listing pages,
// chunks every page's ids, resolves chunks concurrently through the stage,
// and posts each surviving batch as soon as it is ready.
type Runner struct {
	client *client.Client
	stage  *Stage
	config Config
	logger zerolog.Logger
}

// NewRunner validates cfg and builds a runner around c.
func NewRunner(c *client.Client, cfg Config) (*Runner, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1 (got %d): %w", cfg.BatchSize, chunk.ErrInvalidSize)
	}
	if cfg.FetchConcurrency < 1 {
		return nil, fmt.Errorf("fetch concurrency must be >= 1 (got %d)", cfg.FetchConcurrency)
	}
	if cfg.UpstreamBaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if cfg.SinkBaseURL == "" {
		cfg.SinkBaseURL = cfg.UpstreamBaseURL
	}

	return &Runner{
		client: c,
		stage:  NewStage(c, cfg.UpstreamBaseURL, int64(cfg.FetchConcurrency)),
		config: cfg,
		logger: logging.NewLogger("orchestrator"),
	}, nil
}

// Run processes all records once and returns the run summary.
//
// Per-record and per-batch failures are counted and do not stop the run.
// Only a failure to enumerate the very first page aborts: without ids there
// is no work to drive. Work for a page is dispatched in full before the next
// page is requested; chunks across pages may overlap in flight and may post
// out of order, since batches target disjoint id sets.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.NewString()
	logger := r.logger.With().Str("run_id", runID).Logger()
	start := time.Now()

	logger.Info().
		Str("upstream", r.config.UpstreamBaseURL).
		Str("sink", r.config.SinkBaseURL).
		Int("batch_size", r.config.BatchSize).
		Int("fetch_concurrency", r.config.FetchConcurrency).
		Msg("Starting ETL run")

	tally := &tally{}
	extractor := extract.New(r.client, r.config.UpstreamBaseURL)

	var wg sync.WaitGroup
	firstPage := true

	for {
		page, err := extractor.Next(ctx)
		if err != nil {
			if firstPage {
				logger.Error().Err(err).Msg("First listing page unavailable, aborting run")
				return nil, fmt.Errorf("no identifiers could be obtained: %w", err)
			}
			// A later page failure invalidates only that page: already
			// dispatched chunks run to completion, enumeration stops here
			// because page numbers past the failure cannot be trusted.
			logger.Error().Err(err).Msg("Listing page unavailable, stopping enumeration")
			tally.pageFailed()
			break
		}
		if page == nil {
			break
		}
		firstPage = false
		tally.pageExtracted(len(page.IDs))

		chunks, err := chunk.Split(page.IDs, r.config.BatchSize)
		if err != nil {
			// Unreachable after NewRunner validation.
			return nil, err
		}

		for _, ids := range chunks {
			ids := ids
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.processChunk(ctx, logger, tally, ids)
			}()
		}
	}

	wg.Wait()

	elapsed := time.Since(start)
	runDuration.Observe(elapsed.Seconds())
	summary := tally.summary(runID, elapsed)

	logger.Info().
		Int("pages", summary.Pages).
		Int("ids_found", summary.IDsFound).
		Int("records_posted", summary.RecordsPosted).
		Int("records_failed", summary.RecordsFailed).
		Int("batches_sent", summary.BatchesSent).
		Int("batches_failed", summary.BatchesFailed).
		Dur("duration", elapsed).
		Msg("ETL run complete")

	return summary, nil
}

// processChunk resolves one chunk of ids, drops failed entries, and posts the
// survivors as a single batch. A failed post marks every surviving record of
// the chunk as failed; sibling chunks are unaffected.
func (r *Runner) processChunk(ctx context.Context, logger zerolog.Logger, tally *tally, ids []int64) {
	outcomes := r.stage.Resolve(ctx, ids)

	batch := make([]transform.Record, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			tally.recordFailed()
			continue
		}
		batch = append(batch, o.Record)
	}
	tally.recordsFetched(len(batch))

	if len(batch) == 0 {
		logger.Warn().Int("chunk_size", len(ids)).Msg("No records survived chunk, nothing to post")
		return
	}

	url := r.config.SinkBaseURL + "/animals/v1/home"
	if err := r.client.PostBatch(ctx, url, batch); err != nil {
		result := "failed"
		if errors.Is(err, client.ErrRejected) {
			result = "rejected"
		}
		batchesTotal.WithLabelValues(result).Inc()
		tally.batchFailed(len(batch))
		logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Batch submission failed")
		return
	}

	batchesTotal.WithLabelValues("sent").Inc()
	tally.batchSent(len(batch))
	logger.Info().Int("batch_size", len(batch)).Msg("Batch submitted")
}

// tally accumulates run counters across concurrent chunk workers.
type tally struct {
	mu            sync.Mutex
	pages         int
	pagesFailed   int
	ids           int
	fetched       int
	posted        int
	failedRecords int
	batchesSent   int
	batchesFailed int
}

func (t *tally) pageExtracted(ids int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pages++
	t.ids += ids
}

func (t *tally) pageFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pagesFailed++
}

func (t *tally) recordsFetched(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetched += n
}

func (t *tally) recordFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedRecords++
}

func (t *tally) batchSent(records int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batchesSent++
	t.posted += records
}

func (t *tally) batchFailed(records int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batchesFailed++
	t.failedRecords += records
}

func (t *tally) summary(runID string, elapsed time.Duration) *Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Summary{
		RunID:           runID,
		Pages:           t.pages,
		PagesFailed:     t.pagesFailed,
		IDsFound:        t.ids,
		RecordsFetched:  t.fetched,
		RecordsPosted:   t.posted,
		RecordsFailed:   t.failedRecords,
		BatchesSent:     t.batchesSent,
		BatchesFailed:   t.batchesFailed,
		DurationSeconds: elapsed.Seconds(),
	}
}
