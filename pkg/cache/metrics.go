package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	backendFile   = "file"
	backendRedis  = "redis"
	backendMemory = "memory"
)

var (
	// CacheOperations counts store calls by backend and operation
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmdb_cache_operations_total",
			Help: "Total number of cache store operations",
		},
		[]string{"backend", "operation"}, // "has", "get", "put", "keys"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmdb_cache_errors_total",
			Help: "Total number of cache store errors",
		},
		[]string{"backend", "operation"},
	)

	// CacheWrittenBytes tracks bytes written to the store
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tmdb_cache_written_bytes_total",
			Help: "Total bytes written to the cache store",
		},
		[]string{"backend"},
	)
)

func countOp(backend, op string) {
	CacheOperations.WithLabelValues(backend, op).Inc()
}

func countErr(backend, op string) {
	CacheErrors.WithLabelValues(backend, op).Inc()
}
