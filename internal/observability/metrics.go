// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the relay.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts inbound HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novirelay_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records inbound request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novirelay_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks simulated streams currently being emitted.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "novirelay_streaming_connections_active",
			Help: "Active simulated streams",
		},
	)

	// UpstreamAttemptsTotal counts delivery attempts per endpoint by result
	// (ok, http_error, transport_error, invalid_json).
	UpstreamAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novirelay_upstream_attempts_total",
			Help: "Upstream delivery attempts",
		},
		[]string{"endpoint", "result"},
	)

	// UpstreamLatency records per-attempt upstream latency in seconds.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "novirelay_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: LLMBuckets,
		},
		[]string{"endpoint"},
	)

	// UpstreamExhaustedTotal counts requests for which no endpoint succeeded.
	UpstreamExhaustedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "novirelay_upstream_exhausted_total",
			Help: "Requests where every upstream endpoint failed",
		},
	)

	// ModelMatchesTotal counts which resolution rule matched incoming model names.
	ModelMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "novirelay_model_matches_total",
			Help: "Model name resolutions by matching rule",
		},
		[]string{"rule"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamAttemptsTotal,
		UpstreamLatency,
		UpstreamExhaustedTotal,
		ModelMatchesTotal,
	)
}
