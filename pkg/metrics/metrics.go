// Package metrics exposes the Prometheus registry and the HTTP metrics
// of the proxy. Domain metrics are defined next to the code they measure
// (pkg/cache, pkg/client, pkg/ratelimit) and registered via promauto.
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

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// HTTP metrics for the proxy API.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_proxy_http_requests_total",
		Help: "Total API requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bgg_proxy_http_request_duration_seconds",
		Help:    "API request duration in seconds by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations labelled by chi route
// pattern, so path parameters do not create new series.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - bgg_cache_hits_total{namespace} (Counter): Lookups served from cache
//   - bgg_cache_misses_total{namespace} (Counter): Lookups not served, expired entries included
//   - bgg_cache_evictions_total{namespace, reason} (Counter): Entries removed (expired, capacity)
//   - bgg_cache_entries{namespace} (Gauge): Current entry count
//
// Rate Limit Metrics (pkg/ratelimit):
//   - bgg_rate_limit_strikes (Gauge): Consecutive upstream 429 responses
//   - bgg_rate_limit_blocks_total (Counter): Requests blocked during a cooldown
//   - bgg_rate_limit_throttles_total (Counter): Requests paused after repeated strikes
//
// Upstream Metrics (pkg/client):
//   - bgg_upstream_requests_total{endpoint, status} (Counter): BGG requests by endpoint and status
//   - bgg_upstream_request_duration_seconds{endpoint} (Histogram): BGG request duration
//   - bgg_upstream_errors_total{kind} (Counter): Failures by kind
//   - bgg_upstream_pacing_waits_total (Counter): Requests delayed by the pacing limiter
//   - bgg_upstream_retries_total{kind} (Counter): Retry attempts
//   - bgg_upstream_retry_backoff_seconds{kind} (Histogram): Backoff before each retry
//   - bgg_upstream_retry_exhausted_total{kind} (Counter): Requests that used every attempt
//
// Warmup Metrics (pkg/warmup):
//   - bgg_warmup_ids_total{outcome} (Counter): Warmed ids by outcome (ok, failed)
//
// API Metrics (this package):
//   - bgg_proxy_http_requests_total{route, method, status} (Counter)
//   - bgg_proxy_http_request_duration_seconds{route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Metadata Cache Hit Rate
//   sum(rate(bgg_cache_hits_total{namespace="metadata"}[5m])) /
//   (sum(rate(bgg_cache_hits_total{namespace="metadata"}[5m])) + sum(rate(bgg_cache_misses_total{namespace="metadata"}[5m])))
//
//   # Upstream Rate Limiting
//   rate(bgg_upstream_errors_total{kind="rate_limited"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(bgg_upstream_request_duration_seconds_bucket[5m]))
