package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Davincible/llm-bridge/internal/metrics"
	"github.com/Davincible/llm-bridge/internal/models"
	"github.com/Davincible/llm-bridge/internal/retry"
)

const maxStreamLine = 1 << 20

// stream forwards an upstream SSE response through a fresh streaming
// converter for format. Only the initial request is retried; once bytes
// reach the client the stream runs to completion or cancellation. A stream
// the upstream cuts off ends with an error frame instead of the normal
// terminal frames.
func (h *ProxyHandler) stream(w http.ResponseWriter, r *http.Request, rt *route, format string, shape errorShape) {
	conv, err := h.factory.GetStreamingConverter(format)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, shape(err.Error(), errTypeConfiguration))
		return
	}

	// usage counters arrive in the upstream's own dialect
	usageReader, err := h.factory.GetStreamingConverter(rt.provider.Name())
	if err != nil {
		h.logger.Debug("No usage reader for provider", "provider", rt.provider.Name())
		usageReader = nil
	}

	ctx := r.Context()
	policy := h.retry.WithOperation(rt.provider.Name())

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (*http.Response, error) {
		return h.client.Send(ctx, rt.provider.Name(), rt.upstream, rt.url, rt.body, true)
	})
	if err != nil {
		h.writeFailure(w, r, err, shape)
		return
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, shape("decompression error: "+err.Error(), errTypeUpstream))
		return
	}
	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	metrics.StreamingConnections.Inc()
	defer metrics.StreamingConnections.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flushResponse(w)

	var usage models.Usage
	chunks := 0

	scanner := bufio.NewScanner(bodyReader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			// blank separators, comments and event: lines; the event type
			// is repeated inside the data
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk models.Payload
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			h.logger.Warn("Skipping malformed stream chunk", "error", err)
			continue
		}
		chunks++

		if usageReader != nil {
			if carrier, ok := usageCarrier(chunk); ok {
				if u := usageReader.ExtractUsageFromMetadata(carrier); u.TotalTokens > 0 {
					usage = u.Merge(usage)
				}
			}
		}

		out, ok := conv.ConvertChunk(chunk, rt.model)
		if !ok {
			continue
		}

		if _, err := io.WriteString(w, out); err != nil {
			h.logger.Info("Client stopped reading the stream", "error", err)
			return
		}
		flushResponse(w)
	}

	if ctx.Err() != nil {
		h.logger.Info("Stream cancelled by client",
			"provider", rt.provider.Name(),
			"model", rt.model,
			"chunks", chunks,
		)

		return
	}

	if err := scanner.Err(); err != nil {
		h.logger.Error("Upstream stream interrupted",
			"provider", rt.provider.Name(),
			"model", rt.model,
			"chunks", chunks,
			"error", err,
		)

		if _, werr := io.WriteString(w, conv.Fail("upstream stream interrupted: "+err.Error(), errTypeUpstream)); werr == nil {
			flushResponse(w)
		}
		metrics.ObserveTokens(rt.provider.Name(), usage.PromptTokens, usage.CompletionTokens)

		return
	}

	if _, err := io.WriteString(w, conv.Finish()); err != nil {
		h.logger.Info("Client stopped reading the stream", "error", err)
		return
	}
	flushResponse(w)

	metrics.ObserveTokens(rt.provider.Name(), usage.PromptTokens, usage.CompletionTokens)

	h.logger.Info("Completed streaming response",
		"provider", rt.provider.Name(),
		"model", rt.model,
		"format", conv.FormatName(),
		"chunks", chunks,
		"input_tokens", usage.PromptTokens,
		"output_tokens", usage.CompletionTokens,
	)
}

// usageCarrier returns the part of a chunk that holds usage counters:
// converse metadata events, the message of a Claude message_start, OpenAI
// and Claude usage objects or Gemini usageMetadata.
func usageCarrier(chunk models.Payload) (models.Payload, bool) {
	if metadata, ok := chunk["metadata"].(map[string]any); ok {
		return metadata, true
	}

	if message, ok := chunk["message"].(map[string]any); ok {
		if _, ok := message["usage"].(map[string]any); ok {
			return message, true
		}
	}

	for _, key := range []string{"usage", "usageMetadata"} {
		if _, ok := chunk[key].(map[string]any); ok {
			return chunk, true
		}
	}

	return nil, false
}

func flushResponse(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}
