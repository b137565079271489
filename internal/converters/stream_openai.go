package converters

import (
	"log/slog"
	"time"

	"github.com/Davincible/llm-bridge/internal/models"
)

// openAIRenderer writes chat.completion.chunk frames. The role frame is
// always sent before the first content fragment.
type openAIRenderer struct {
	id       string
	created  int64
	model    string
	started  bool
	finished bool
	usage    models.Usage
}

func newOpenAIRenderer() *openAIRenderer {
	return &openAIRenderer{
		id:      models.NewCompletionID(),
		created: time.Now().Unix(),
	}
}

func (r *openAIRenderer) chunk(choices []any) models.Payload {
	return models.Payload{
		"id":      r.id,
		"object":  models.ObjectChatCompletionChunk,
		"created": r.created,
		"model":   r.model,
		"choices": choices,
	}
}

func (r *openAIRenderer) choice(delta models.Payload, finish any) []any {
	return []any{models.Payload{
		"index":         0,
		"delta":         delta,
		"finish_reason": finish,
	}}
}

func (r *openAIRenderer) start() string {
	if r.started {
		return ""
	}
	r.started = true

	return sseData(r.chunk(r.choice(models.Payload{"role": models.RoleAssistant, "content": ""}, nil)))
}

func (r *openAIRenderer) render(events []streamEvent, model string) string {
	if r.model == "" {
		r.model = model
	}

	var out string
	for _, ev := range events {
		switch ev.kind {
		case eventStart:
			if ev.model != "" && !r.started {
				r.model = ev.model
			}
			r.usage = ev.usage.Merge(r.usage)
			out += r.start()
		case eventText:
			out += r.start()
			out += sseData(r.chunk(r.choice(models.Payload{"content": ev.text}, nil)))
		case eventFinish:
			out += r.start()
			out += sseData(r.chunk(r.choice(models.Payload{}, ev.finish)))
			r.finished = true
		case eventUsage:
			r.usage = ev.usage.Merge(r.usage)
			frame := r.chunk([]any{})
			frame["usage"] = r.usage.Payload()
			out += sseData(frame)
		}
	}

	return out
}

// observe tracks an upstream chunk that was passed through verbatim, so a
// synthesized terminal frame continues the same stream.
func (r *openAIRenderer) observe(chunk models.Payload, model string) {
	r.started = true

	if id, ok := chunk["id"].(string); ok && id != "" {
		r.id = id
	}
	if m, ok := chunk["model"].(string); ok && m != "" {
		r.model = m
	} else if r.model == "" {
		r.model = model
	}

	choices, _ := chunk["choices"].([]any)
	for _, c := range choices {
		choice, _ := c.(map[string]any)
		if reason, ok := choice["finish_reason"].(string); ok && reason != "" {
			r.finished = true
		}
	}
}

// finish closes a started stream whose upstream never sent a
// finish_reason, then terminates it.
func (r *openAIRenderer) finish() string {
	if !r.started || r.finished {
		return DoneFrame
	}
	r.finished = true

	return sseData(r.chunk(r.choice(models.Payload{}, "stop"))) + DoneFrame
}

// OpenAIStreamConverter emits OpenAI chat.completion.chunk frames. OpenAI
// chunks pass through; Claude and converse events are translated.
type OpenAIStreamConverter struct {
	logger   *slog.Logger
	renderer *openAIRenderer
}

func NewOpenAIStreamConverter(logger *slog.Logger) *OpenAIStreamConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAIStreamConverter{logger: logger, renderer: newOpenAIRenderer()}
}

func (c *OpenAIStreamConverter) FormatName() string { return FormatOpenAI }

func (c *OpenAIStreamConverter) ConvertChunk(chunk models.Payload, model string) (string, bool) {
	switch {
	case isOpenAIChunk(chunk):
		out := models.Clone(chunk)
		if _, ok := out["object"]; !ok {
			out["object"] = models.ObjectChatCompletionChunk
		}
		c.renderer.observe(chunk, model)
		return sseData(out), true
	case isConverseEvent(chunk):
		return c.emit(decodeConverseEvent(chunk), model)
	case chunk["type"] != nil:
		return c.emit(decodeClaudeEvent(chunk), model)
	default:
		c.logger.Warn("Dropping unrecognised stream chunk", "format", FormatOpenAI)
		return "", false
	}
}

func (c *OpenAIStreamConverter) emit(events []streamEvent, model string) (string, bool) {
	out := c.renderer.render(events, model)
	return out, out != ""
}

// ExtractUsageFromMetadata reads an OpenAI usage block, either nested under
// "usage" or given directly.
func (c *OpenAIStreamConverter) ExtractUsageFromMetadata(metadata models.Payload) models.Usage {
	if usage, ok := metadata["usage"].(map[string]any); ok {
		return openAIUsage(usage)
	}

	return openAIUsage(metadata)
}

// Finish adds a finish_reason "stop" frame when the upstream ended without
// one, then DoneFrame.
func (c *OpenAIStreamConverter) Finish() string {
	return c.renderer.finish()
}

func (c *OpenAIStreamConverter) Fail(message, errType string) string {
	return openAIErrorFrame(message, errType)
}

// GeminiStreamConverter turns streamGenerateContent chunks into OpenAI
// chat.completion.chunk frames.
type GeminiStreamConverter struct {
	logger   *slog.Logger
	renderer *openAIRenderer
}

func NewGeminiStreamConverter(logger *slog.Logger) *GeminiStreamConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiStreamConverter{logger: logger, renderer: newOpenAIRenderer()}
}

func (c *GeminiStreamConverter) FormatName() string { return FormatGemini }

func (c *GeminiStreamConverter) ConvertChunk(chunk models.Payload, model string) (string, bool) {
	if !isGeminiChunk(chunk) {
		c.logger.Warn("Dropping stream chunk without candidates", "format", FormatGemini)
		return "", false
	}

	out := c.renderer.render(decodeGeminiChunk(chunk), model)

	return out, out != ""
}

// ExtractUsageFromMetadata reads Gemini usage counters, either nested under
// usageMetadata or given directly.
func (c *GeminiStreamConverter) ExtractUsageFromMetadata(metadata models.Payload) models.Usage {
	if usage, ok := metadata["usageMetadata"].(map[string]any); ok {
		return geminiUsage(usage)
	}

	return geminiUsage(metadata)
}

func (c *GeminiStreamConverter) Finish() string {
	return c.renderer.finish()
}

func (c *GeminiStreamConverter) Fail(message, errType string) string {
	return openAIErrorFrame(message, errType)
}
