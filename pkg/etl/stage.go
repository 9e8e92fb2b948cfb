// Package etl drives the extract-transform-load cycle: it resolves animal
// identifiers into normalized records under a global fetch concurrency cap
// and streams bounded batches to the downstream sink page by page.
package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/logging"
	"github.com/Sternrassler/animal-etl/pkg/transform"
)

// Prometheus metrics for the fetch-transform stage.
var (
	leasesOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animal_fetch_leases_outstanding",
		Help: "Fetches currently holding a concurrency token",
	})

	recordsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_records_resolved_total",
		Help: "Record resolutions by result (transformed, not_found, failed)",
	}, []string{"result"})
)

// Outcome is the tagged per-identifier result of the fetch-transform stage:
// either a transformed record or the error that prevented it. Failures never
// propagate out of the fan-out as anything but an Outcome.
type Outcome struct {
	ID     int64
	Record transform.Record
	Err    error
}

// Stage fetches full records and transforms them under a shared concurrency
// cap. One token pool spans all chunks and pages of a run, so at most its
// capacity in fetches is ever in flight system-wide.
type Stage struct {
	client  *client.Client
	baseURL string
	tokens  *semaphore.Weighted
	logger  zerolog.Logger
}

// NewStage creates a stage whose token pool admits concurrency simultaneous fetches.
func NewStage(c *client.Client, baseURL string, concurrency int64) *Stage {
	return &Stage{
		client:  c,
		baseURL: baseURL,
		tokens:  semaphore.NewWeighted(concurrency),
		logger:  logging.NewLogger("stage"),
	}
}

// Resolve fetches and transforms every identifier and returns one outcome per
// id, in input order. It returns only once all identifiers have an outcome;
// a failed identifier does not abort its siblings.
func (s *Stage) Resolve(ctx context.Context, ids []int64) []Outcome {
	outcomes := make([]Outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = s.resolveOne(ctx, id)
		}()
	}
	wg.Wait()

	return outcomes
}

// resolveOne fetches one record while holding a concurrency token, then
// transforms it after the token is released. Transformation is pure and
// non-blocking, so it needs no lease.
func (s *Stage) resolveOne(ctx context.Context, id int64) Outcome {
	if err := s.tokens.Acquire(ctx, 1); err != nil {
		recordsResolvedTotal.WithLabelValues("failed").Inc()
		return Outcome{ID: id, Err: fmt.Errorf("acquire fetch token: %w", err)}
	}
	leasesOutstanding.Inc()

	url := fmt.Sprintf("%s/animals/v1/animals/%d", s.baseURL, id)

	var raw transform.Record
	err := s.client.Get(ctx, url, &raw)

	leasesOutstanding.Dec()
	s.tokens.Release(1)

	if err != nil {
		result := "failed"
		if errors.Is(err, client.ErrNotFound) {
			result = "not_found"
		}
		recordsResolvedTotal.WithLabelValues(result).Inc()
		s.logger.Warn().Err(err).Int64("animal_id", id).Msg("Record fetch failed")
		return Outcome{ID: id, Err: err}
	}

	recordsResolvedTotal.WithLabelValues("transformed").Inc()
	return Outcome{ID: id, Record: transform.Transform(raw)}
}
