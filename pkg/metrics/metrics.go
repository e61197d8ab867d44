// Package metrics provides the Prometheus exposition endpoint and HTTP-level
// metrics for the view cache server. Cache and store metrics are defined in
// their respective packages (cache, store) via promauto.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the view cache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	// RequestsTotal tracks served requests by route pattern and status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewcache_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"route", "status"},
	)

	// RequestDuration tracks request duration by route pattern.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewcache_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Handler returns the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records RequestsTotal and RequestDuration. Requests are labelled
// with the chi route pattern, not the raw path, to bound cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Metrics Documentation
//
// HTTP Metrics (pkg/metrics):
//   - viewcache_http_requests_total{route, status} (Counter): Requests by route pattern and status
//   - viewcache_http_request_duration_seconds{route} (Histogram): Request duration by route pattern
//
// Cache Metrics (pkg/cache):
//   - viewcache_hits_total{path_id} (Counter): Responses served from cache
//   - viewcache_misses_total{path_id} (Counter): Cacheable requests that ran the handler
//   - viewcache_stores_total{path_id} (Counter): Responses written to the store
//   - viewcache_bypass_total{reason} (Counter): Requests/responses refused by policy
//   - viewcache_store_errors_total{operation} (Counter): Store failures (generation, get, set)
//   - viewcache_generation (Gauge): Last observed generation
//
// Store Metrics (pkg/store):
//   - viewcache_store_connect_attempts_total (Counter): Startup connection attempts
//   - viewcache_store_connect_backoff_seconds (Histogram): Backoff between attempts
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate per view
//   sum by (path_id) (rate(viewcache_hits_total[5m])) /
//   (sum by (path_id) (rate(viewcache_hits_total[5m])) + sum by (path_id) (rate(viewcache_misses_total[5m])))
//
//   # Degraded requests
//   sum by (operation) (rate(viewcache_store_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(viewcache_http_request_duration_seconds_bucket[5m]))
