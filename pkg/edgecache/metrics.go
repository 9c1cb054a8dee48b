package edgecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (hot, redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_hits_total",
			Help: "Total number of edge cache hits",
		},
		[]string{"layer"}, // "hot", "redis"
	)

	// CacheMisses tracks cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_misses_total",
			Help: "Total number of edge cache misses",
		},
	)

	// CacheBypass tracks requests that were ineligible for caching.
	CacheBypass = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_bypass_total",
			Help: "Total number of requests that bypassed the edge cache",
		},
		[]string{"reason"}, // "method", "authorized"
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_cache_errors_total",
			Help: "Total number of edge cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "purge"
	)

	// CachePurges tracks purged keys.
	CachePurges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "edge_cache_purges_total",
			Help: "Total number of edge cache keys purged",
		},
	)
)
