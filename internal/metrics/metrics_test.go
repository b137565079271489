package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	RequestsTotal.WithLabelValues("POST", "/v1/chat/completions", "2xx").Inc()
	RequestDuration.WithLabelValues("POST", "/v1/chat/completions").Observe(0.1)
	ConversionsTotal.WithLabelValues("claude", "request", "ok").Inc()
	ConversionWarningsTotal.WithLabelValues("claude").Inc()
	UpstreamRequestsTotal.WithLabelValues("claude", "200").Inc()
	UpstreamLatency.WithLabelValues("claude").Observe(0.2)
	RetriesTotal.WithLabelValues("upstream").Inc()
	TokensTotal.WithLabelValues("claude", "input").Add(1)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range families {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"llmb_requests_total",
		"llmb_request_duration_seconds",
		"llmb_streaming_connections_active",
		"llmb_conversions_total",
		"llmb_conversion_warnings_total",
		"llmb_upstream_requests_total",
		"llmb_upstream_latency_seconds",
		"llmb_retries_total",
		"llmb_tokens_total",
	} {
		assert.True(t, found[name], "metric %s should be registered", name)
	}
}

func TestObserveConversion(t *testing.T) {
	okBefore := testutil.ToFloat64(ConversionsTotal.WithLabelValues("gemini", "response", "ok"))
	errBefore := testutil.ToFloat64(ConversionsTotal.WithLabelValues("gemini", "response", "error"))
	warnBefore := testutil.ToFloat64(ConversionWarningsTotal.WithLabelValues("gemini"))

	ObserveConversion("gemini", "response", true, 0)
	ObserveConversion("gemini", "response", false, 3)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ConversionsTotal.WithLabelValues("gemini", "response", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(ConversionsTotal.WithLabelValues("gemini", "response", "error")))
	assert.Equal(t, warnBefore+3, testutil.ToFloat64(ConversionWarningsTotal.WithLabelValues("gemini")))
}

func TestObserveTokens(t *testing.T) {
	inBefore := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "input"))
	outBefore := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "output"))

	ObserveTokens("openai", 10, 0)

	assert.Equal(t, inBefore+10, testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "input")))
	assert.Equal(t, outBefore, testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "output")))
}
