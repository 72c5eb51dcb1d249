// Package metrics exposes the Prometheus registry of tmdb-proxy.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, pagination, details) and registered via promauto.
//
// This package provides the /metrics handler and the list of metric names.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package registers its metrics with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source the /metrics handler reads from.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists the metrics owned by tmdb-proxy.
//
// Request metrics (pkg/client):
//   - tmdb_requests_total{endpoint, status}
//   - tmdb_request_duration_seconds{endpoint}
//   - tmdb_errors_total{class}
//   - tmdb_retries_total{error_class}
//   - tmdb_retry_exhausted_total{error_class}
//
// Pacing (pkg/ratelimit):
//   - tmdb_pacer_pauses_total{job}
//   - tmdb_pacer_pause_seconds_total{job}
//   - tmdb_rate_limit_wait_seconds
//
// Cache store (pkg/cache):
//   - tmdb_cache_operations_total{backend, operation}
//   - tmdb_cache_errors_total{backend, operation}
//   - tmdb_cache_written_bytes_total{backend}
//
// Fetch runs (pkg/pagination, pkg/details):
//   - tmdb_pages_total{result}
//   - tmdb_pages_end_page
//   - tmdb_details_total{result}
//   - tmdb_details_unreadable_pages_total
//
// Example queries:
//
//	# Failed pages in the last run window
//	increase(tmdb_pages_total{result="failed"}[1h])
//
//	# P95 request latency
//	histogram_quantile(0.95, rate(tmdb_request_duration_seconds_bucket[5m]))
var Names = []string{
	"tmdb_requests_total",
	"tmdb_request_duration_seconds",
	"tmdb_errors_total",
	"tmdb_retries_total",
	"tmdb_retry_exhausted_total",
	"tmdb_pacer_pauses_total",
	"tmdb_pacer_pause_seconds_total",
	"tmdb_rate_limit_wait_seconds",
	"tmdb_cache_operations_total",
	"tmdb_cache_errors_total",
	"tmdb_cache_written_bytes_total",
	"tmdb_pages_total",
	"tmdb_pages_end_page",
	"tmdb_details_total",
	"tmdb_details_unreadable_pages_total",
}
