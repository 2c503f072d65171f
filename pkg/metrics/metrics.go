// Package metrics exposes the Prometheus registry of the posts client.
// Metrics are defined in their owning packages (client, cache, ratelimit,
// pagination, loader) via promauto so they register on import.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer used by every package of the module.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - posts_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - posts_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - posts_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - posts_retries_total{error_class} (Counter): Retry attempts by error class
//   - posts_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - posts_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - posts_cache_hits_total (Counter): Revalidation entries found
//   - posts_cache_misses_total (Counter): Lookups without entry
//   - posts_cache_stored_bytes_total (Counter): Bytes written to Redis
//   - posts_cache_conditional_requests_total (Counter): Requests sent with validators
//   - posts_cache_not_modified_total (Counter): 304 responses served from cache
//   - posts_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - posts_rate_limit_remaining (Gauge): Requests remaining in the upstream window
//   - posts_rate_limit_blocks_total (Counter): Requests blocked locally
//   - posts_rate_limit_throttles_total (Counter): Requests delayed in the warning band
//
// Coordinator Metrics (pkg/pagination, pkg/loader):
//   - posts_pagination_transitions_total{message} (Counter): Messages applied by page coordinators
//   - posts_pagination_pages_loaded_total{kind} (Counter): Pages applied by kind (refresh, append, prepend)
//   - posts_pagination_fetch_failures_total{kind} (Counter): Failed page fetches by kind
//   - posts_pagination_stale_results_total (Counter): Results discarded by generation
//   - posts_batch_pages_fetched_total (Counter): Pages fetched by the batch fetcher
//   - posts_batch_fetch_duration_seconds (Histogram): Batch fetch-all duration
//   - posts_loader_loads_total{outcome} (Counter): Single-fetch loads by outcome
//
// Example Prometheus Queries:
//
//	# Revalidation hit rate
//	rate(posts_cache_not_modified_total[5m]) / rate(posts_requests_total[5m])
//
//	# Failed page loads
//	sum by (kind) (rate(posts_pagination_fetch_failures_total[5m]))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(posts_request_duration_seconds_bucket[5m]))
