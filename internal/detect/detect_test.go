package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClaudeModel(t *testing.T) {
	tests := []struct {
		model    string
		expected bool
	}{
		{"claude-3.5-sonnet", true},
		{"anthropic--claude-4-sonnet", true},
		{"CLAUDE-OPUS", true},
		{"my-sonnet-prod", true},
		{"clau-v2", true},
		{"sonne-vendor-model", true}, // known false positive, kept on purpose
		{"gpt-4o", false},
		{"gemini-2.5-pro", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsClaudeModel(tt.model))
		})
	}
}

func TestIsGeminiModel(t *testing.T) {
	assert.True(t, IsGeminiModel("gemini-2.5-pro"))
	assert.True(t, IsGeminiModel("Gemini-Flash-Latest"))
	assert.True(t, IsGeminiModel("gemini-1.5-flash:latest"))
	assert.False(t, IsGeminiModel("gpt-4o"))
	assert.False(t, IsGeminiModel("claude-4.5-sonnet"))
}

func TestIsClaude37Or4(t *testing.T) {
	tests := []struct {
		model    string
		expected bool
	}{
		{"claude-3.5-sonnet", false},
		{"claude-3.7-sonnet", true},
		{"claude-4.5-sonnet", true},
		{"claude-sonnet-4", true},
		{"claude-sonnet", true},
		{"anthropic--claude-3.5-haiku", false},
		{"gpt-4o", false},
		{"o4-mini", false},
		{"gemini-2.5-pro", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsClaude37Or4(tt.model))
		})
	}
}

func TestModelVersion(t *testing.T) {
	tests := []struct {
		model   string
		version string
		ok      bool
	}{
		{"claude-3.5-sonnet", "3.5", true},
		{"claude-4-opus", "4", true},
		{"gemini-2.5-pro", "2.5", true},
		{"gpt-4o", "4", true},
		{"claude-sonnet", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			v, ok := ModelVersion(tt.model)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, v)
		})
	}
}
