package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/llm-bridge/internal/config"
)

func TestProxyIntegration(t *testing.T) {
	var upstreamPath, upstreamKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamPath = r.URL.Path
		upstreamKey = r.Header.Get("x-goog-api-key")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"parts": [{"text": "Hello back"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 4, "candidatesTokenCount": 2, "totalTokenCount": 6}
		}`))
	}))
	defer upstream.Close()

	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.Upstreams.Gemini = config.Upstream{BaseURL: upstream.URL, APIKey: "gemini-key"}

	manager := config.NewManager(t.TempDir())
	require.NoError(t, manager.Save(cfg))

	handler := New(manager, testLogger()).Handler()

	body := `{"model":"gemini-2.5-flash","messages":[{"role":"user","content":"Hello, world!"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/models/gemini-2.5-flash:generateContent", upstreamPath)
	assert.Equal(t, "gemini-key", upstreamKey)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "chat.completion", resp["object"])

	choices := resp["choices"].([]any)
	require.Len(t, choices, 1)
	message := choices[0].(map[string]any)["message"].(map[string]any)
	assert.Equal(t, "Hello back", message["content"])
	assert.Equal(t, "stop", choices[0].(map[string]any)["finish_reason"])

	usage := resp["usage"].(map[string]any)
	assert.EqualValues(t, 6, usage["total_tokens"])
}
