package handlers

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/Davincible/llm-bridge/internal/config"
	"github.com/Davincible/llm-bridge/internal/metrics"
	"github.com/Davincible/llm-bridge/internal/models"
	"github.com/Davincible/llm-bridge/internal/providers"
)

const maxErrorBody = 4096

// UpstreamError is a non-2xx reply from a provider. Its message carries the
// status text so that rate-limit replies (429 Too Many Requests) are
// recognised by the retry policy.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// UpstreamClient sends converted payloads to provider endpoints. Plain
// requests are bounded by the timeout end to end; streaming requests only
// have to produce response headers within it and may then run for as long
// as the upstream keeps sending.
type UpstreamClient struct {
	client       *http.Client
	streamClient *http.Client
	logger       *slog.Logger
}

func NewUpstreamClient(timeout time.Duration, logger *slog.Logger) *UpstreamClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &UpstreamClient{
		client:       &http.Client{Transport: transport, Timeout: timeout},
		streamClient: &http.Client{Transport: transport},
		logger:       logger,
	}
}

// Send posts body to url. On a 2xx reply the open response is returned and
// the caller owns its body; any other status is drained into an
// *UpstreamError.
func (c *UpstreamClient) Send(ctx context.Context, provider string, upstream config.Upstream, url string, body models.Payload, stream bool) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode upstream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	setAuth(req, provider, upstream.APIKey)

	c.logger.Debug("Sending upstream request", "provider", provider, "url", url, "stream", stream)

	client := c.client
	if stream {
		client = c.streamClient
	}

	start := time.Now()
	resp, err := client.Do(req)
	metrics.UpstreamLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(provider, "error").Inc()
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(provider, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()

		msg, _ := readBody(resp, maxErrorBody)
		c.logger.Warn("Upstream error response",
			"provider", provider,
			"status", resp.StatusCode,
			"body", string(msg),
		)

		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	return resp, nil
}

// JSON sends a non-streaming request and decodes the reply.
func (c *UpstreamClient) JSON(ctx context.Context, provider string, upstream config.Upstream, url string, body models.Payload) (models.Payload, error) {
	resp, err := c.Send(ctx, provider, upstream, url, body, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader, err := decompressReader(resp)
	if err != nil {
		return nil, fmt.Errorf("decompression error: %w", err)
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	var out models.Payload
	if err := json.NewDecoder(reader).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}

	return out, nil
}

// setAuth applies the credential header each provider family expects.
func setAuth(req *http.Request, provider, apiKey string) {
	if apiKey == "" {
		return
	}

	switch provider {
	case providers.NameGemini:
		req.Header.Set("x-goog-api-key", apiKey)
	case providers.NameClaude:
		req.Header.Set("Authorization", "Bearer "+apiKey)
		req.Header.Set("x-api-key", apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	var bodyReader io.Reader = resp.Body

	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		bodyReader = gzipReader
	case "br":
		bodyReader = brotli.NewReader(resp.Body)
	}

	return bodyReader, nil
}

func readBody(resp *http.Response, limit int64) ([]byte, error) {
	reader, err := decompressReader(resp)
	if err != nil {
		return nil, err
	}

	return io.ReadAll(io.LimitReader(reader, limit))
}
