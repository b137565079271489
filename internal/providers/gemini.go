package providers

import (
	"strings"

	"github.com/Davincible/llm-bridge/internal/detect"
	"github.com/Davincible/llm-bridge/internal/models"
)

const (
	VariantFlash   = "flash"
	VariantPro     = "pro"
	VariantUnknown = "unknown"
)

type GeminiProvider struct {
	name string
}

func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{
		name: NameGemini,
	}
}

func (p *GeminiProvider) Name() string {
	return p.name
}

func (p *GeminiProvider) SupportsStreaming() bool {
	return true
}

func (p *GeminiProvider) SupportsModel(model string) bool {
	return detect.IsGeminiModel(model)
}

// EndpointURL builds the generateContent path. Alias suffixes such as
// ":latest" are not part of the upstream model name.
func (p *GeminiProvider) EndpointURL(baseURL, model string, stream bool) string {
	name, _, _ := strings.Cut(model, ":")

	action := "generateContent"
	if stream {
		action = "streamGenerateContent"
	}

	return strings.TrimRight(baseURL, "/") + "/models/" + name + ":" + action
}

func (p *GeminiProvider) StreamingEndpoint(baseURL, model string) string {
	return p.EndpointURL(baseURL, model, true)
}

func (p *GeminiProvider) PrepareRequest(payload models.Payload) models.Payload {
	return payload
}

// ModelVariant returns "flash", "pro" or "unknown".
func (p *GeminiProvider) ModelVariant(model string) string {
	lower := strings.ToLower(model)

	switch {
	case strings.Contains(lower, VariantFlash):
		return VariantFlash
	case strings.Contains(lower, VariantPro):
		return VariantPro
	default:
		return VariantUnknown
	}
}

func (p *GeminiProvider) ModelVersion(model string) (string, bool) {
	return detect.ModelVersion(model)
}
