package converters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/llm-bridge/internal/models"
)

func TestBedrockConverter_StripsUnsupportedFields(t *testing.T) {
	c := NewBedrockConverter(testLogger())

	cached := map[string]any{
		"type":          "text",
		"text":          "long context",
		"cache_control": map[string]any{"type": "ephemeral"},
	}
	tool := map[string]any{
		"name":           "search",
		"input_schema":   map[string]any{"type": "object"},
		"input_examples": []any{map[string]any{"q": "x"}},
		"custom": map[string]any{
			"input_examples": []any{},
			"keep":           true,
		},
	}

	payload := models.Payload{
		"model":          "anthropic.claude-3-5-sonnet",
		"max_tokens":     1024,
		"temperature":    0.5,
		"top_k":          5,
		"stream":         true,
		"metadata":       map[string]any{"user_id": "u1"},
		"system":         []any{map[string]any{"type": "text", "text": "sys", "cache_control": map[string]any{}}},
		"stop_sequences": []any{"\n\nHuman:"},
		"messages": []any{
			map[string]any{"role": "user", "content": []any{cached, map[string]any{"type": "text", "text": "q", "cache_control": nil}}},
			map[string]any{"role": "assistant", "content": "plain answer"},
		},
		"tools": []any{tool},
	}

	res := c.ConvertRequest(payload)
	require.True(t, res.OK())
	out := res.Payload

	assert.Equal(t, "bedrock-2023-05-31", out["anthropic_version"])
	assert.Equal(t, 1024, out["max_tokens"])
	assert.Equal(t, 5, out["top_k"])
	assert.NotContains(t, out, "stream")
	assert.NotContains(t, out, "metadata")
	assert.Equal(t, payload["system"], out["system"], "system passes through verbatim")

	messages := out["messages"].([]any)
	for _, raw := range messages {
		content := raw.(models.Payload)["content"].([]any)
		for _, block := range content {
			assert.NotContains(t, block, "cache_control")
		}
	}

	assistant := messages[1].(models.Payload)
	assert.Equal(t, []any{models.Payload{"type": "text", "text": "plain answer"}}, assistant["content"])

	cleanedTool := out["tools"].([]any)[0].(models.Payload)
	assert.NotContains(t, cleanedTool, "input_examples")
	custom := cleanedTool["custom"].(models.Payload)
	assert.NotContains(t, custom, "input_examples")
	assert.Equal(t, true, custom["keep"])

	assert.Equal(t, 2, res.Metadata["cache_control_removed"])
	assert.Equal(t, 2, res.Metadata["input_examples_removed"])

	// the caller's payload is left untouched
	assert.Contains(t, cached, "cache_control")
	assert.Contains(t, tool, "input_examples")
	assert.Contains(t, tool["custom"], "input_examples")
}

func TestBedrockConverter_KeepsExplicitVersion(t *testing.T) {
	c := NewBedrockConverter(testLogger())

	res := c.ConvertRequest(models.Payload{
		"anthropic_version": "bedrock-2099-01-01",
		"messages":          []any{map[string]any{"role": "user", "content": "Hi"}},
	})

	assert.Equal(t, "bedrock-2099-01-01", res.Payload["anthropic_version"])
	assert.Equal(t, 0, res.Metadata["cache_control_removed"])
}

func TestBedrockConverter_ResponsePassThrough(t *testing.T) {
	c := NewBedrockConverter(testLogger())
	assert.Equal(t, "claude", c.SourceFormat())
	assert.Equal(t, "bedrock", c.TargetFormat())

	response := models.Payload{
		"type":    "message",
		"role":    "assistant",
		"content": []any{map[string]any{"type": "text", "text": "ok"}},
	}

	res := c.ConvertResponse(response, "claude-3.5-sonnet")
	require.True(t, res.OK())
	assert.Equal(t, response, res.Payload)
	assertClaudeMessage(t, res.Payload)
}
