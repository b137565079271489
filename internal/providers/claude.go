package providers

import (
	"strings"

	"github.com/Davincible/llm-bridge/internal/detect"
	"github.com/Davincible/llm-bridge/internal/models"
)

const deploymentPrefix = "anthropic--"

// ClaudeProvider targets Claude on Bedrock-style endpoints. 3.5 models use
// the invoke generation, 3.7 and newer use converse.
type ClaudeProvider struct {
	name string
}

func NewClaudeProvider() *ClaudeProvider {
	return &ClaudeProvider{
		name: NameClaude,
	}
}

func (p *ClaudeProvider) Name() string {
	return p.name
}

func (p *ClaudeProvider) SupportsStreaming() bool {
	return true
}

func (p *ClaudeProvider) SupportsModel(model string) bool {
	return detect.IsClaudeModel(model)
}

func (p *ClaudeProvider) EndpointURL(baseURL, model string, stream bool) string {
	base := strings.TrimRight(baseURL, "/")

	if detect.IsClaude37Or4(model) {
		if stream {
			return base + "/converse-stream"
		}

		return base + "/converse"
	}

	return p.InvokeEndpointURL(baseURL, stream)
}

// InvokeEndpointURL returns the invoke endpoint for any model generation.
// Native Messages API payloads are always sent there.
func (p *ClaudeProvider) InvokeEndpointURL(baseURL string, stream bool) string {
	base := strings.TrimRight(baseURL, "/")

	if stream {
		return base + "/invoke-with-response-stream"
	}

	return base + "/invoke"
}

func (p *ClaudeProvider) StreamingEndpoint(baseURL, model string) string {
	return p.EndpointURL(baseURL, model, true)
}

// PrepareRequest is the identity: Claude needs no parameter filtering.
func (p *ClaudeProvider) PrepareRequest(payload models.Payload) models.Payload {
	return payload
}

// NormalizeModelName strips the deployment prefix some gateways put in
// front of Claude model names.
func (p *ClaudeProvider) NormalizeModelName(model string) string {
	return strings.TrimPrefix(model, deploymentPrefix)
}

func (p *ClaudeProvider) ModelVersion(model string) (string, bool) {
	return detect.ModelVersion(model)
}
