package providers

import (
	"log/slog"
	"strings"

	"github.com/Davincible/llm-bridge/internal/models"
)

const (
	APIVersionReasoning = "2024-12-01-preview"
	APIVersionDefault   = "2023-05-15"
)

var reasoningMarkers = []string{"o3", "o4-mini", "o3-mini"}

// models that reject an explicit temperature
var fixedTemperatureMarkers = []string{"o3-mini", "o3mini"}

// OpenAIProvider serves OpenAI and Azure OpenAI chat completions. It accepts
// every model name and must therefore be the last provider registered.
type OpenAIProvider struct {
	name   string
	logger *slog.Logger
}

func NewOpenAIProvider(logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIProvider{
		name:   NameOpenAI,
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) SupportsStreaming() bool {
	return true
}

func (p *OpenAIProvider) SupportsModel(string) bool {
	return true
}

func (p *OpenAIProvider) EndpointURL(baseURL, model string, _ bool) string {
	version := APIVersionDefault
	if p.IsReasoningModel(model) {
		version = APIVersionReasoning
	}

	return strings.TrimRight(baseURL, "/") + "/chat/completions?api-version=" + version
}

func (p *OpenAIProvider) StreamingEndpoint(baseURL, model string) string {
	return p.EndpointURL(baseURL, model, true)
}

// PrepareRequest drops temperature for models that only accept the default.
// The input payload is never modified.
func (p *OpenAIProvider) PrepareRequest(payload models.Payload) models.Payload {
	model, _ := payload["model"].(string)
	if !containsAnyFold(model, fixedTemperatureMarkers) {
		return payload
	}

	if _, ok := payload["temperature"]; !ok {
		return payload
	}

	out := models.Clone(payload)
	delete(out, "temperature")

	p.logger.Debug("Removed temperature for fixed-temperature model", "model", model)

	return out
}

// IsReasoningModel reports whether model belongs to the o-series reasoning
// family, which is served under the preview API version.
func (p *OpenAIProvider) IsReasoningModel(model string) bool {
	return containsAnyFold(model, reasoningMarkers)
}

func containsAnyFold(s string, needles []string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}

	return false
}
