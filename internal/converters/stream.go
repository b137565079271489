package converters

import (
	"encoding/json"
	"fmt"

	"github.com/Davincible/llm-bridge/internal/models"
)

// DoneFrame terminates every rendered stream.
const DoneFrame = "data: [DONE]\n\n"

// StreamingConverter re-frames upstream streaming chunks into one SSE
// grammar. Instances keep per-stream state and must not be shared between
// streams.
type StreamingConverter interface {
	FormatName() string
	// ConvertChunk renders one decoded upstream chunk. The bool is false when
	// the chunk was rejected or produced no output.
	ConvertChunk(chunk models.Payload, model string) (string, bool)
	ExtractUsageFromMetadata(metadata models.Payload) models.Usage
	// Finish returns the frames that close the stream, ending with DoneFrame.
	Finish() string
	// Fail returns the frame reporting that the upstream broke off. The
	// stream is not finished afterwards and no DoneFrame follows.
	Fail(message, errType string) string
}

type eventKind int

const (
	eventStart eventKind = iota
	eventText
	eventBlockStop
	eventFinish
	eventUsage
)

// streamEvent is the format-neutral form of an upstream chunk. Finish
// reasons use the OpenAI vocabulary. A start event may carry the prompt
// tokens known when the upstream message opened.
type streamEvent struct {
	kind   eventKind
	model  string
	text   string
	finish string
	usage  models.Usage
}

func sseEvent(eventType string, data any) string {
	body, _ := json.Marshal(data)
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, body)
}

func sseData(data any) string {
	body, _ := json.Marshal(data)
	return fmt.Sprintf("data: %s\n\n", body)
}

// openAIErrorFrame is the error object OpenAI sends inside a stream.
func openAIErrorFrame(message, errType string) string {
	return sseData(models.Payload{
		"error": models.Payload{
			"message": message,
			"type":    errType,
			"param":   nil,
			"code":    nil,
		},
	})
}

var converseStreamKeys = []string{"messageStart", "contentBlockStart", "contentBlockDelta", "contentBlockStop", "messageStop", "metadata"}

func isConverseEvent(chunk models.Payload) bool {
	for _, key := range converseStreamKeys {
		if _, ok := chunk[key]; ok {
			return true
		}
	}

	return false
}

func isOpenAIChunk(chunk models.Payload) bool {
	_, ok := chunk["choices"]
	return ok
}

func isGeminiChunk(chunk models.Payload) bool {
	_, ok := chunk["candidates"]
	return ok
}

// decodeConverseEvent reads one Bedrock converse-stream event.
func decodeConverseEvent(chunk models.Payload) []streamEvent {
	var events []streamEvent

	if _, ok := chunk["messageStart"]; ok {
		events = append(events, streamEvent{kind: eventStart})
	}

	if block, ok := chunk["contentBlockDelta"].(map[string]any); ok {
		delta, _ := block["delta"].(map[string]any)
		if text, ok := delta["text"].(string); ok {
			events = append(events, streamEvent{kind: eventText, text: text})
		}
	}

	if _, ok := chunk["contentBlockStop"]; ok {
		events = append(events, streamEvent{kind: eventBlockStop})
	}

	if stop, ok := chunk["messageStop"].(map[string]any); ok {
		reason, _ := stop["stopReason"].(string)
		events = append(events, streamEvent{kind: eventFinish, finish: openAIFinish(reason)})
	}

	if metadata, ok := chunk["metadata"].(map[string]any); ok {
		if usage, ok := metadata["usage"].(map[string]any); ok {
			events = append(events, streamEvent{kind: eventUsage, usage: converseUsage(usage)})
		}
	}

	return events
}

func converseUsage(usage map[string]any) models.Usage {
	input := intField(usage, "inputTokens")
	output := intField(usage, "outputTokens")

	return models.NewUsage(input, output, intField(usage, "totalTokens"))
}

// openAIFinish maps a Claude or converse stop reason to a finish_reason.
func openAIFinish(stopReason string) string {
	if finish, ok := converseStopReasons[stopReason]; ok {
		return finish
	}

	return "stop"
}

// claudeStopReason maps a finish_reason to a Claude stop_reason.
func claudeStopReason(finish string) string {
	if reason, ok := claudeStopReasons[finish]; ok {
		return reason
	}

	return "end_turn"
}

// decodeClaudeEvent reads one native Claude streaming event.
func decodeClaudeEvent(chunk models.Payload) []streamEvent {
	eventType, _ := chunk["type"].(string)

	switch eventType {
	case "message_start":
		message, _ := chunk["message"].(map[string]any)
		model, _ := message["model"].(string)
		usage, _ := message["usage"].(map[string]any)
		input := intField(usage, "input_tokens")
		output := intField(usage, "output_tokens")
		return []streamEvent{{kind: eventStart, model: model, usage: models.NewUsage(input, output, input+output)}}
	case "content_block_delta":
		delta, _ := chunk["delta"].(map[string]any)
		if delta["type"] != "text_delta" {
			return nil
		}
		text, _ := delta["text"].(string)
		return []streamEvent{{kind: eventText, text: text}}
	case "content_block_stop":
		return []streamEvent{{kind: eventBlockStop}}
	case "message_delta":
		var events []streamEvent
		delta, _ := chunk["delta"].(map[string]any)
		if reason, ok := delta["stop_reason"].(string); ok {
			events = append(events, streamEvent{kind: eventFinish, finish: openAIFinish(reason)})
		}
		if usage, ok := chunk["usage"].(map[string]any); ok {
			input := intField(usage, "input_tokens")
			output := intField(usage, "output_tokens")
			events = append(events, streamEvent{kind: eventUsage, usage: models.NewUsage(input, output, input+output)})
		}
		return events
	default:
		return nil
	}
}

// decodeOpenAIChunk reads one chat.completion.chunk. Usage carried by the
// finishing chunk is reported ahead of the finish event.
func decodeOpenAIChunk(chunk models.Payload) []streamEvent {
	var events []streamEvent

	model, _ := chunk["model"].(string)

	var choice map[string]any
	if choices, _ := chunk["choices"].([]any); len(choices) > 0 {
		choice, _ = choices[0].(map[string]any)
	}
	delta, _ := choice["delta"].(map[string]any)

	if _, ok := delta["role"]; ok {
		events = append(events, streamEvent{kind: eventStart, model: model})
	}
	if text, ok := delta["content"].(string); ok && text != "" {
		events = append(events, streamEvent{kind: eventText, text: text})
	}
	if usage, ok := chunk["usage"].(map[string]any); ok {
		events = append(events, streamEvent{kind: eventUsage, usage: openAIUsage(usage)})
	}
	if finish, ok := choice["finish_reason"].(string); ok && finish != "" {
		events = append(events, streamEvent{kind: eventFinish, finish: finish})
	}

	return events
}

func openAIUsage(usage map[string]any) models.Usage {
	return models.NewUsage(
		intField(usage, "prompt_tokens"),
		intField(usage, "completion_tokens"),
		intField(usage, "total_tokens"),
	)
}

// decodeGeminiChunk reads one streamGenerateContent chunk. Usage is only
// reported on the chunk that carries finishReason; earlier chunks hold
// running counts.
func decodeGeminiChunk(chunk models.Payload) []streamEvent {
	var events []streamEvent

	candidates, _ := chunk["candidates"].([]any)
	if len(candidates) == 0 {
		return nil
	}

	candidate, _ := candidates[0].(map[string]any)
	content, _ := candidate["content"].(map[string]any)
	if text := geminiPartsText(content["parts"]); text != "" {
		events = append(events, streamEvent{kind: eventText, text: text})
	}

	if reason, ok := candidate["finishReason"].(string); ok && reason != "" {
		finish, ok := geminiFinishReasons[reason]
		if !ok {
			finish = "stop"
		}
		events = append(events, streamEvent{kind: eventFinish, finish: finish})

		if metadata, ok := chunk["usageMetadata"].(map[string]any); ok {
			events = append(events, streamEvent{kind: eventUsage, usage: geminiUsage(metadata)})
		}
	}

	return events
}
