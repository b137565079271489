package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) Payload {
	t.Helper()

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	return p
}

func TestParseModelRequest(t *testing.T) {
	p := decode(t, `{
		"model": " claude-4.5-sonnet ",
		"messages": [{"role": "system", "content": "be brief"}, {"role": "user", "content": "hi"}],
		"temperature": 0.2,
		"max_tokens": 128,
		"stream": true,
		"top_p": 0.9
	}`)

	req, err := ParseModelRequest(p)
	require.NoError(t, err)

	assert.Equal(t, "claude-4.5-sonnet", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "hi", req.Messages[1].Content)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 128, *req.MaxTokens)
	assert.True(t, req.Stream)
	assert.Equal(t, map[string]any{"top_p": 0.9}, req.Extra)
}

func TestParseModelRequest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"missing model", `{"messages": [{"role": "user", "content": "x"}]}`, "model must be provided"},
		{"no messages", `{"model": "gpt-4o", "messages": []}`, "at least one message"},
		{"message not object", `{"model": "gpt-4o", "messages": ["x"]}`, "messages[0] is not an object"},
		{"message without role", `{"model": "gpt-4o", "messages": [{"content": "x"}]}`, "messages[0] has no role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelRequest(decode(t, tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestUsage_Merge(t *testing.T) {
	tests := []struct {
		name     string
		later    Usage
		earlier  Usage
		expected Usage
	}{
		{"prompt from start", NewUsage(0, 7, 7), NewUsage(25, 0, 25), Usage{PromptTokens: 25, CompletionTokens: 7, TotalTokens: 32}},
		{"complete later wins", NewUsage(3, 4, 9), NewUsage(25, 1, 26), Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 9}},
		{"nothing earlier", NewUsage(0, 7, 7), Usage{}, Usage{PromptTokens: 0, CompletionTokens: 7, TotalTokens: 7}},
		{"completion kept", NewUsage(5, 0, 5), NewUsage(0, 2, 2), Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.later.Merge(tt.earlier))
		})
	}
}

func TestNewUsage_TotalNeverBelowSum(t *testing.T) {
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, NewUsage(3, 4, 0))
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, NewUsage(3, 4, 5))
	assert.Equal(t, Usage{PromptTokens: 3, CompletionTokens: 4, TotalTokens: 10}, NewUsage(3, 4, 10))
}

func TestModelResponse_OpenAIPayload(t *testing.T) {
	resp := ModelResponse{
		Content: "Hello",
		Model:   "gemini-2.5-pro",
		Usage:   NewUsage(5, 2, 0),
	}

	p := resp.OpenAIPayload()

	assert.Equal(t, ObjectChatCompletion, p["object"])
	assert.True(t, strings.HasPrefix(p["id"].(string), "chatcmpl-"))

	choice := p["choices"].([]any)[0].(Payload)
	assert.Equal(t, "stop", choice["finish_reason"])
	msg := choice["message"].(Payload)
	assert.Equal(t, RoleAssistant, msg["role"])
	assert.Equal(t, "Hello", msg["content"])

	usage := p["usage"].(Payload)
	assert.Equal(t, 7, usage["total_tokens"])
}

func TestClone_DoesNotAliasTopLevel(t *testing.T) {
	src := Payload{"temperature": 0.5}
	dst := Clone(src)
	delete(dst, "temperature")

	assert.Contains(t, src, "temperature")
}
