package converters

import (
	"log/slog"

	"github.com/Davincible/llm-bridge/internal/models"
)

// Claude SSE event types, in lifecycle order.
const (
	claudeMessageStart      = "message_start"
	claudeContentBlockStart = "content_block_start"
	claudeContentBlockDelta = "content_block_delta"
	claudeContentBlockStop  = "content_block_stop"
	claudeMessageDelta      = "message_delta"
	claudeMessageStop       = "message_stop"
	claudeError             = "error"
)

var claudeStreamEvents = map[string]bool{
	claudeMessageStart:      true,
	claudeContentBlockStart: true,
	claudeContentBlockDelta: true,
	claudeContentBlockStop:  true,
	claudeMessageDelta:      true,
	claudeMessageStop:       true,
	claudeError:             true,
}

// claudeRenderer writes Claude SSE events for a single text content block.
// Usage that arrives before the stop reason is attached to the stop
// message_delta; usage that arrives later gets a message_delta of its own.
type claudeRenderer struct {
	id        string
	model     string
	started   bool
	blockOpen bool
	finished  bool
	stopped   bool
	pending   *models.Usage
	usage     models.Usage
}

func newClaudeRenderer() *claudeRenderer {
	return &claudeRenderer{id: models.NewMessageID()}
}

func (r *claudeRenderer) start() string {
	if r.started {
		return ""
	}
	r.started = true

	return sseEvent(claudeMessageStart, models.Payload{
		"type": claudeMessageStart,
		"message": models.Payload{
			"id":            r.id,
			"type":          "message",
			"role":          models.RoleAssistant,
			"model":         r.model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         models.Payload{"input_tokens": r.usage.PromptTokens, "output_tokens": 0},
		},
	})
}

func (r *claudeRenderer) openBlock() string {
	if r.blockOpen {
		return ""
	}
	r.blockOpen = true

	return sseEvent(claudeContentBlockStart, models.Payload{
		"type":          claudeContentBlockStart,
		"index":         0,
		"content_block": models.Payload{"type": ContentTypeText, "text": ""},
	})
}

func (r *claudeRenderer) closeBlock() string {
	if !r.blockOpen {
		return ""
	}
	r.blockOpen = false

	return sseEvent(claudeContentBlockStop, models.Payload{"type": claudeContentBlockStop, "index": 0})
}

func claudeUsage(u models.Usage) models.Payload {
	return models.Payload{"input_tokens": u.PromptTokens, "output_tokens": u.CompletionTokens}
}

func (r *claudeRenderer) render(events []streamEvent, model string) string {
	if r.model == "" {
		r.model = model
	}

	var out string
	for _, ev := range events {
		switch ev.kind {
		case eventStart:
			if !r.started && ev.model != "" {
				r.model = ev.model
			}
			r.usage = ev.usage.Merge(r.usage)
			out += r.start()
		case eventText:
			out += r.start()
			out += r.openBlock()
			out += sseEvent(claudeContentBlockDelta, models.Payload{
				"type":  claudeContentBlockDelta,
				"index": 0,
				"delta": models.Payload{"type": "text_delta", "text": ev.text},
			})
		case eventBlockStop:
			out += r.closeBlock()
		case eventFinish:
			out += r.start()
			out += r.closeBlock()

			delta := models.Payload{
				"type":  claudeMessageDelta,
				"delta": models.Payload{"stop_reason": claudeStopReason(ev.finish), "stop_sequence": nil},
			}
			if r.pending != nil {
				delta["usage"] = claudeUsage(*r.pending)
				r.pending = nil
			}
			out += sseEvent(claudeMessageDelta, delta)
			r.finished = true
		case eventUsage:
			r.usage = ev.usage.Merge(r.usage)
			if !r.finished {
				u := r.usage
				r.pending = &u
				continue
			}
			out += sseEvent(claudeMessageDelta, models.Payload{
				"type":  claudeMessageDelta,
				"delta": models.Payload{},
				"usage": claudeUsage(r.usage),
			})
		}
	}

	return out
}

// observe tracks lifecycle events that were passed through verbatim.
func (r *claudeRenderer) observe(eventType string) {
	switch eventType {
	case claudeMessageStart:
		r.started = true
	case claudeContentBlockStart:
		r.blockOpen = true
	case claudeContentBlockStop:
		r.blockOpen = false
	case claudeMessageDelta:
		r.finished = true
	case claudeMessageStop:
		r.stopped = true
	}
}

func (r *claudeRenderer) finish() string {
	if !r.started || r.stopped {
		return ""
	}
	r.stopped = true

	return r.closeBlock() + sseEvent(claudeMessageStop, models.Payload{"type": claudeMessageStop})
}

// ClaudeStreamConverter emits Claude SSE events. Native Claude events are
// re-framed as is; converse events, OpenAI chunks and Gemini chunks are
// translated.
type ClaudeStreamConverter struct {
	logger   *slog.Logger
	renderer *claudeRenderer
}

func NewClaudeStreamConverter(logger *slog.Logger) *ClaudeStreamConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClaudeStreamConverter{logger: logger, renderer: newClaudeRenderer()}
}

func (c *ClaudeStreamConverter) FormatName() string { return FormatClaude }

func (c *ClaudeStreamConverter) ConvertChunk(chunk models.Payload, model string) (string, bool) {
	if eventType, ok := chunk["type"].(string); ok {
		return c.native(eventType, chunk)
	}

	var events []streamEvent
	switch {
	case isConverseEvent(chunk):
		events = decodeConverseEvent(chunk)
	case isOpenAIChunk(chunk):
		events = decodeOpenAIChunk(chunk)
	case isGeminiChunk(chunk):
		events = decodeGeminiChunk(chunk)
	default:
		c.logger.Warn("Dropping unrecognised stream chunk", "format", FormatClaude)
		return "", false
	}

	out := c.renderer.render(events, model)

	return out, out != ""
}

func (c *ClaudeStreamConverter) native(eventType string, chunk models.Payload) (string, bool) {
	if !claudeStreamEvents[eventType] {
		c.logger.Warn("Rejected invalid stream event", "format", FormatClaude, "type", eventType)
		return "", false
	}

	if eventType == claudeContentBlockDelta {
		delta, _ := chunk["delta"].(map[string]any)
		if delta["type"] != "text_delta" {
			c.logger.Warn("Rejected non-text content delta", "format", FormatClaude, "delta_type", delta["type"])
			return "", false
		}
	}

	c.renderer.observe(eventType)

	return sseEvent(eventType, chunk), true
}

// ExtractUsageFromMetadata reads converse usage (nested under "usage" or
// bare) or Claude input_tokens/output_tokens counters.
func (c *ClaudeStreamConverter) ExtractUsageFromMetadata(metadata models.Payload) models.Usage {
	if usage, ok := metadata["usage"].(map[string]any); ok {
		metadata = usage
	}

	if _, ok := metadata["inputTokens"]; ok {
		return converseUsage(metadata)
	}
	if _, ok := metadata["outputTokens"]; ok {
		return converseUsage(metadata)
	}

	input := intField(metadata, "input_tokens")
	output := intField(metadata, "output_tokens")

	return models.NewUsage(input, output, input+output)
}

// Finish closes an open message with message_stop and appends DoneFrame.
func (c *ClaudeStreamConverter) Finish() string {
	return c.renderer.finish() + DoneFrame
}

// Fail emits a Claude error event. The message is left open so clients do
// not mistake the cut-off output for a complete one.
func (c *ClaudeStreamConverter) Fail(message, errType string) string {
	c.renderer.stopped = true

	return sseEvent(claudeError, models.Payload{
		"type":  claudeError,
		"error": models.Payload{"type": errType, "message": message},
	})
}
