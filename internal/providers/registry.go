package providers

import (
	"log/slog"
	"sync"

	"github.com/Davincible/llm-bridge/internal/models"
)

const (
	NameClaude = "claude"
	NameGemini = "gemini"
	NameOpenAI = "openai"
)

// EndpointResolver builds upstream URLs for a model.
type EndpointResolver interface {
	EndpointURL(baseURL, model string, stream bool) string
	StreamingEndpoint(baseURL, model string) string
}

// Provider describes one upstream family: which models it claims, where
// requests go and which provider-specific parameters must be filtered out.
// Providers never change the wire format of a payload; that is the
// converters' job.
type Provider interface {
	EndpointResolver

	Name() string
	SupportsModel(model string) bool
	SupportsStreaming() bool
	PrepareRequest(payload models.Payload) models.Payload
}

// Registry resolves model names to providers. Registration order is match
// priority, so a catch-all provider must be registered last.
type Registry struct {
	mu     sync.RWMutex
	order  []Provider
	byName map[string]Provider
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		byName: make(map[string]Provider),
		logger: logger,
	}
}

// Register appends provider to the match order. Registering a name twice is
// a no-op.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.byName[name]; exists {
		r.logger.Warn("Provider already registered, ignoring", "provider", name)
		return
	}

	r.order = append(r.order, provider)
	r.byName[name] = provider

	r.logger.Debug("Registered provider", "provider", name, "priority", len(r.order))
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, exists := r.byName[name]

	return provider, exists
}

// GetProvider returns the first registered provider that supports model.
func (r *Registry) GetProvider(model string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.order {
		if p.SupportsModel(model) {
			return p, true
		}
	}

	return nil, false
}

// DetectProvider returns the name of the provider responsible for model.
func (r *Registry) DetectProvider(model string) (string, bool) {
	p, ok := r.GetProvider(model)
	if !ok {
		return "", false
	}

	return p.Name(), true
}

// List returns registered provider names in priority order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, p := range r.order {
		names = append(names, p.Name())
	}

	return names
}

// Initialize registers the built-in providers. OpenAI goes last because it
// accepts every model name.
func (r *Registry) Initialize() {
	r.Register(NewClaudeProvider())
	r.Register(NewGeminiProvider())
	r.Register(NewOpenAIProvider(r.logger))
}
