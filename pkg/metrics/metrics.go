// Package metrics provides the centralized Prometheus metrics registry for the
// edge server. All metrics are defined in their respective packages (edgecache,
// ratelimit, purge) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the edge server.
// All metrics are automatically registered via promauto in their respective
// packages and exposed on /metrics.
var Registry = prometheus.DefaultRegisterer

// Handler returns the HTTP handler serving the registry on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/edgecache):
//   - edge_cache_hits_total{layer} (Counter): Cache hits by layer (hot, redis)
//   - edge_cache_misses_total (Counter): Cache misses
//   - edge_cache_bypass_total{reason} (Counter): Ineligible requests by reason (method, authorized)
//   - edge_cache_errors_total{operation} (Counter): Cache operation errors (get, set, purge)
//   - edge_cache_purges_total (Counter): Keys purged from the store
//
// Rate Limit Metrics (pkg/ratelimit):
//   - edge_ratelimit_allowed_total (Counter): Requests admitted
//   - edge_ratelimit_rejected_total (Counter): Requests rejected with 429
//   - edge_ratelimit_sweeps_total (Counter): Opportunistic bucket table sweeps
//   - edge_ratelimit_buckets (Gauge): Live buckets after the last sweep
//
// Purge Metrics (pkg/purge):
//   - edge_purge_urls_total{result} (Counter): Purge attempts by result (ok, error, invalid)
//   - edge_purge_batches_total (Counter): Dispatched purge batches
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(edge_cache_hits_total[5m])) /
//   (sum(rate(edge_cache_hits_total[5m])) + sum(rate(edge_cache_misses_total[5m])))
//
//   # Rate Limit Rejection Rate
//   rate(edge_ratelimit_rejected_total[5m])
//
//   # Purge Failure Ratio
//   rate(edge_purge_urls_total{result="error"}[5m]) /
//   sum(rate(edge_purge_urls_total[5m]))
