// Package metrics documents the Prometheus metrics exposed by the service.
// All metrics are defined in their respective packages (client, etl, cache)
// via promauto to maintain modularity and avoid circular dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their packages
// and served at /metrics.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - animal_requests_total{method, status} (Counter): HTTP requests by method and status
//   - animal_request_duration_seconds{method} (Histogram): request duration
//   - animal_errors_total{class} (Counter): errors by class (client, server, network)
//
// Retry Metrics (pkg/client):
//   - animal_retries_total{error_class} (Counter): retry attempts
//   - animal_retry_backoff_seconds{error_class} (Histogram): backoff waits
//   - animal_retry_exhausted_total{error_class} (Counter): exhausted retry budgets
//
// Pipeline Metrics (pkg/etl):
//   - animal_fetch_leases_outstanding (Gauge): fetches holding a concurrency token
//   - animal_records_resolved_total{result} (Counter): per-id outcomes
//     (transformed, not_found, failed)
//   - animal_batches_total{result} (Counter): batch submissions (sent, rejected, failed)
//   - animal_run_duration_seconds (Histogram): full run durations
//
// Cache Metrics (pkg/cache):
//   - animal_cache_hits_total (Counter): proxy cache hits
//   - animal_cache_misses_total (Counter): proxy cache misses
//   - animal_cache_errors_total{operation} (Counter): cache operation errors
//
// Example Prometheus Queries:
//
//   # Concurrency cap utilization
//   animal_fetch_leases_outstanding
//
//   # Record failure rate per run window
//   rate(animal_records_resolved_total{result="failed"}[5m])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(animal_request_duration_seconds_bucket[5m]))
