// Package metrics holds the Prometheus collectors for the gateway. They are
// registered with the default registry on import and served on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LatencyBuckets covers upstream model latencies from 100ms to two minutes.
var LatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts inbound HTTP requests by method, route and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_requests_total",
			Help: "Inbound requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records inbound request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmb_request_duration_seconds",
			Help:    "Inbound request duration",
			Buckets: LatencyBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks SSE responses currently being written.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmb_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ConversionsTotal counts converter calls by converter, direction and outcome.
	ConversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_conversions_total",
			Help: "Payload conversions",
		},
		[]string{"converter", "direction", "status"},
	)

	// ConversionWarningsTotal counts non-fatal conversion problems.
	ConversionWarningsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_conversion_warnings_total",
			Help: "Conversion warnings",
		},
		[]string{"converter"},
	)

	// UpstreamRequestsTotal counts calls made to provider endpoints.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_upstream_requests_total",
			Help: "Upstream provider requests",
		},
		[]string{"provider", "status"},
	)

	// UpstreamLatency records provider latency in seconds, up to the response headers.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmb_upstream_latency_seconds",
			Help:    "Upstream provider latency",
			Buckets: LatencyBuckets,
		},
		[]string{"provider"},
	)

	// RetriesTotal counts retry attempts triggered by rate limiting.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_retries_total",
			Help: "Retried upstream calls",
		},
		[]string{"operation"},
	)

	// TokensTotal counts tokens reported by providers, by direction.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmb_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ConversionsTotal,
		ConversionWarningsTotal,
		UpstreamRequestsTotal,
		UpstreamLatency,
		RetriesTotal,
		TokensTotal,
	)
}

// ObserveConversion records the outcome of one converter call.
func ObserveConversion(converter, direction string, ok bool, warnings int) {
	status := "ok"
	if !ok {
		status = "error"
	}

	ConversionsTotal.WithLabelValues(converter, direction, status).Inc()
	if warnings > 0 {
		ConversionWarningsTotal.WithLabelValues(converter).Add(float64(warnings))
	}
}

// ObserveTokens adds provider-reported token counts.
func ObserveTokens(provider string, input, output int) {
	if input > 0 {
		TokensTotal.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		TokensTotal.WithLabelValues(provider, "output").Add(float64(output))
	}
}
