// Package observability provides Prometheus metrics, OpenTelemetry tracing
// and HTTP middleware for monitoring the vaultgate gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// BackendBuckets defines histogram buckets for detect API latencies,
// ranging from 25ms to 30s.
var BackendBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and mode.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "mode"},
	)

	// RequestDuration records HTTP request duration in seconds by method.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultgate_request_duration_seconds",
			Help:    "Request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// AuthFailuresTotal counts requests rejected before a request context
	// was bound, by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_auth_failures_total",
			Help: "Rejected requests by reason",
		},
		[]string{"reason"},
	)

	// AnonymousFallbackTotal counts requests served with the anonymous
	// credential set, by trigger ("credentials" or "placeholder").
	AnonymousFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_anonymous_fallback_total",
			Help: "Anonymous fallbacks",
		},
		[]string{"trigger"},
	)

	// RateLimitRejectedTotal counts anonymous requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vaultgate_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
	)

	// RateLimitEntries tracks the number of live rate-limit windows.
	RateLimitEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultgate_ratelimit_entries",
			Help: "Live rate limit windows",
		},
	)

	// RequestContextsActive tracks bound, not yet released request contexts.
	RequestContextsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vaultgate_request_contexts_active",
			Help: "Active request contexts",
		},
	)

	// BackendRequestsTotal counts calls to the vault detect API.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultgate_backend_requests_total",
			Help: "Backend requests",
		},
		[]string{"operation", "status"},
	)

	// BackendLatency records detect API latency in seconds.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vaultgate_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: BackendBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		AnonymousFallbackTotal,
		RateLimitRejectedTotal,
		RateLimitEntries,
		RequestContextsActive,
		BackendRequestsTotal,
		BackendLatency,
	)
}
