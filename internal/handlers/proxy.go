package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Davincible/llm-bridge/internal/config"
	"github.com/Davincible/llm-bridge/internal/converters"
	"github.com/Davincible/llm-bridge/internal/detect"
	"github.com/Davincible/llm-bridge/internal/metrics"
	"github.com/Davincible/llm-bridge/internal/models"
	"github.com/Davincible/llm-bridge/internal/providers"
	"github.com/Davincible/llm-bridge/internal/retry"
)

const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeUpstream       = "upstream_error"
	errTypeConfiguration  = "configuration_error"

	maxRequestBody = 32 << 20
)

// ProxyHandler serves the OpenAI-compatible and Claude-compatible endpoints
// and forwards each request to the provider that owns its model.
type ProxyHandler struct {
	config   *config.Manager
	registry *providers.Registry
	factory  *converters.Factory
	client   *UpstreamClient
	retry    *retry.Policy
	logger   *slog.Logger
}

func NewProxyHandler(cfg *config.Manager, registry *providers.Registry, factory *converters.Factory, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		config:   cfg,
		registry: registry,
		factory:  factory,
		client:   NewUpstreamClient(cfg.Get().UpstreamTimeout(), logger),
		retry:    retry.New(logger),
		logger:   logger,
	}
}

// route is one resolved upstream call. A nil binding means the upstream
// already speaks the inbound format.
type route struct {
	provider providers.Provider
	upstream config.Upstream
	url      string
	body     models.Payload
	binding  *converters.Binding
	model    string
	stream   bool
}

// bindingName labels conversion metrics with the registered converter key.
func bindingName(b *converters.Binding) string {
	if b == nil {
		return "passthrough"
	}

	return b.Converter.SourceFormat() + "_to_" + b.Converter.TargetFormat()
}

// apiError is a failure that already knows its HTTP status and body.
type apiError struct {
	status  int
	payload models.Payload
}

func (e *apiError) Error() string {
	msg, _ := e.payload["message"].(string)
	return fmt.Sprintf("%d: %s", e.status, msg)
}

type errorShape func(message, errType string) models.Payload

// ChatCompletions handles POST /v1/chat/completions.
func (h *ProxyHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	payload, err := h.decodeBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, models.ErrorPayload(err.Error(), errTypeInvalidRequest))
		return
	}

	req, err := models.ParseModelRequest(payload)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, models.ErrorPayload(err.Error(), errTypeInvalidRequest))
		return
	}

	rt, err := h.planOpenAI(payload, req)
	if err != nil {
		h.writeFailure(w, r, err, models.ErrorPayload)
		return
	}

	h.logger.Info("Proxying chat completion",
		"provider", rt.provider.Name(),
		"model", rt.model,
		"stream", rt.stream,
	)

	if rt.stream {
		format := converters.FormatOpenAI
		if rt.provider.Name() == providers.NameGemini {
			format = converters.FormatGemini
		}
		h.stream(w, r, rt, format, models.ErrorPayload)

		return
	}

	out, err := h.complete(r.Context(), rt)
	if err != nil {
		h.writeFailure(w, r, err, models.ErrorPayload)
		return
	}

	h.writeJSON(w, http.StatusOK, out)
}

// Messages handles POST /v1/messages. Claude models go to the invoke
// endpoint with a cleaned native payload; every other model is served by
// translating to the OpenAI shape and back.
func (h *ProxyHandler) Messages(w http.ResponseWriter, r *http.Request) {
	payload, err := h.decodeBody(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, claudeError(err.Error(), errTypeInvalidRequest))
		return
	}

	model, _ := payload["model"].(string)
	if model == "" {
		h.writeError(w, http.StatusBadRequest, claudeError("model must be provided", errTypeInvalidRequest))
		return
	}
	stream, _ := payload["stream"].(bool)

	if detect.IsClaudeModel(model) {
		rt, err := h.planBedrock(payload, model, stream)
		if err != nil {
			h.writeFailure(w, r, err, claudeError)
			return
		}

		h.logger.Info("Proxying native message", "model", model, "stream", stream)

		if stream {
			h.stream(w, r, rt, converters.FormatClaude, claudeError)
			return
		}

		out, err := h.complete(r.Context(), rt)
		if err != nil {
			h.writeFailure(w, r, err, claudeError)
			return
		}

		h.writeJSON(w, http.StatusOK, out)

		return
	}

	binding, err := h.factory.Resolve(converters.FormatClaude, converters.FormatOpenAI)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, claudeError(err.Error(), errTypeConfiguration))
		return
	}

	res := binding.ConvertRequest(payload)
	metrics.ObserveConversion(bindingName(&binding), "request", res.OK(), len(res.Warnings))
	if !res.OK() {
		h.writeError(w, http.StatusBadRequest, res.Payload)
		return
	}

	req, err := models.ParseModelRequest(res.Payload)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, claudeError(err.Error(), errTypeInvalidRequest))
		return
	}

	rt, err := h.planOpenAI(res.Payload, req)
	if err != nil {
		h.writeFailure(w, r, err, claudeError)
		return
	}

	h.logger.Info("Proxying translated message",
		"provider", rt.provider.Name(),
		"model", model,
		"stream", stream,
	)

	if rt.stream {
		h.stream(w, r, rt, converters.FormatClaude, claudeError)
		return
	}

	out, err := h.complete(r.Context(), rt)
	if err != nil {
		h.writeFailure(w, r, err, claudeError)
		return
	}

	final := binding.ConvertResponse(out, model)
	metrics.ObserveConversion(bindingName(&binding), "response", final.OK(), len(final.Warnings))
	if !final.OK() {
		h.writeError(w, http.StatusBadGateway, final.Payload)
		return
	}

	h.writeJSON(w, http.StatusOK, final.Payload)
}

// planOpenAI routes an OpenAI-shaped request to its provider and converts
// the body to that provider's format.
func (h *ProxyHandler) planOpenAI(payload models.Payload, req models.ModelRequest) (*route, error) {
	provider, ok := h.registry.GetProvider(req.Model)
	if !ok {
		return nil, &apiError{
			status:  http.StatusBadRequest,
			payload: models.ErrorPayload(fmt.Sprintf("no provider for model %q", req.Model), errTypeInvalidRequest),
		}
	}

	upstream, err := h.upstreamFor(provider.Name())
	if err != nil {
		return nil, err
	}

	rt := &route{
		provider: provider,
		upstream: upstream,
		body:     provider.PrepareRequest(payload),
		model:    req.Model,
		stream:   req.Stream,
	}

	if provider.Name() != providers.NameOpenAI {
		binding, err := h.factory.Resolve(converters.FormatOpenAI, provider.Name())
		if err != nil {
			return nil, &apiError{
				status:  http.StatusInternalServerError,
				payload: models.ErrorPayload(err.Error(), errTypeConfiguration),
			}
		}

		res := binding.ConvertRequest(rt.body)
		metrics.ObserveConversion(bindingName(&binding), "request", res.OK(), len(res.Warnings))
		if !res.OK() {
			return nil, &apiError{status: http.StatusBadRequest, payload: res.Payload}
		}

		rt.body = res.Payload
		rt.binding = &binding
	}

	rt.url = provider.EndpointURL(upstream.BaseURL, req.Model, req.Stream)
	if req.Stream && provider.Name() == providers.NameGemini {
		rt.url += "?alt=sse"
	}

	return rt, nil
}

// planBedrock routes a native Claude Messages request to the invoke
// endpoint after cleaning it for Bedrock.
func (h *ProxyHandler) planBedrock(payload models.Payload, model string, stream bool) (*route, error) {
	provider, ok := h.registry.Get(providers.NameClaude)
	if !ok {
		return nil, &apiError{
			status:  http.StatusInternalServerError,
			payload: claudeError("claude provider is not registered", errTypeConfiguration),
		}
	}

	upstream, err := h.upstreamFor(provider.Name())
	if err != nil {
		return nil, err
	}

	binding, err := h.factory.Resolve(converters.FormatClaude, converters.FormatBedrock)
	if err != nil {
		return nil, &apiError{
			status:  http.StatusInternalServerError,
			payload: claudeError(err.Error(), errTypeConfiguration),
		}
	}

	res := binding.ConvertRequest(payload)
	metrics.ObserveConversion(bindingName(&binding), "request", res.OK(), len(res.Warnings))
	if !res.OK() {
		return nil, &apiError{status: http.StatusBadRequest, payload: res.Payload}
	}

	url := provider.EndpointURL(upstream.BaseURL, model, stream)
	if claude, ok := provider.(*providers.ClaudeProvider); ok {
		url = claude.InvokeEndpointURL(upstream.BaseURL, stream)
	}

	return &route{
		provider: provider,
		upstream: upstream,
		url:      url,
		body:     res.Payload,
		binding:  &binding,
		model:    model,
		stream:   stream,
	}, nil
}

func (h *ProxyHandler) upstreamFor(provider string) (config.Upstream, error) {
	upstream, ok := h.config.Get().Upstream(provider)
	if !ok || upstream.BaseURL == "" {
		return config.Upstream{}, &apiError{
			status:  http.StatusServiceUnavailable,
			payload: models.ErrorPayload(fmt.Sprintf("no upstream configured for provider %s", provider), errTypeConfiguration),
		}
	}

	return upstream, nil
}

// complete performs a non-streaming call with retries and converts the
// reply back to the inbound format.
func (h *ProxyHandler) complete(ctx context.Context, rt *route) (models.Payload, error) {
	policy := h.retry.WithOperation(rt.provider.Name())

	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (models.Payload, error) {
		return h.client.JSON(ctx, rt.provider.Name(), rt.upstream, rt.url, rt.body)
	})
	if err != nil {
		return nil, err
	}

	out := resp
	if rt.binding != nil {
		res := rt.binding.ConvertResponse(resp, rt.model)
		metrics.ObserveConversion(bindingName(rt.binding), "response", res.OK(), len(res.Warnings))
		if !res.OK() {
			return nil, &apiError{status: http.StatusBadGateway, payload: res.Payload}
		}
		out = res.Payload
	}

	usage := responseUsage(out)
	metrics.ObserveTokens(rt.provider.Name(), usage.PromptTokens, usage.CompletionTokens)

	h.logger.Info("Completed response",
		"provider", rt.provider.Name(),
		"model", rt.model,
		"input_tokens", usage.PromptTokens,
		"output_tokens", usage.CompletionTokens,
	)

	return out, nil
}

// responseUsage reads OpenAI or Claude usage counters from a response.
func responseUsage(payload models.Payload) models.Usage {
	usage, _ := payload["usage"].(map[string]any)
	if usage == nil {
		return models.Usage{}
	}

	if _, ok := usage["input_tokens"]; ok {
		return models.NewUsage(number(usage["input_tokens"]), number(usage["output_tokens"]), 0)
	}

	return models.NewUsage(number(usage["prompt_tokens"]), number(usage["completion_tokens"]), number(usage["total_tokens"]))
}

func number(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (h *ProxyHandler) decodeBody(w http.ResponseWriter, r *http.Request) (models.Payload, error) {
	var payload models.Payload

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse request body: %w", err)
	}

	return payload, nil
}

// writeFailure renders err in the endpoint's error shape. A request whose
// client went away gets no reply.
func (h *ProxyHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error, shape errorShape) {
	var apiErr *apiError
	var upstreamErr *UpstreamError

	switch {
	case errors.As(err, &apiErr):
		h.writeError(w, apiErr.status, apiErr.payload)
	case r.Context().Err() != nil:
		h.logger.Info("Client went away before the upstream replied", "error", err)
	case errors.As(err, &upstreamErr):
		h.writeError(w, upstreamErr.StatusCode, shape(upstreamErr.Error(), errTypeUpstream))
	default:
		h.writeError(w, http.StatusBadGateway, shape(err.Error(), errTypeUpstream))
	}
}

func (h *ProxyHandler) writeError(w http.ResponseWriter, status int, payload models.Payload) {
	h.logger.Error("HTTP Error", "code", status, "body", payload)
	h.writeJSON(w, status, payload)
}

func (h *ProxyHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to write response", "error", err)
	}
}

// claudeError is the Messages API error body.
func claudeError(message, errType string) models.Payload {
	return models.Payload{
		"type": "error",
		"error": models.Payload{
			"type":    errType,
			"message": message,
		},
	}
}
