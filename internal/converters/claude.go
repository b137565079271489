package converters

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Davincible/llm-bridge/internal/detect"
	"github.com/Davincible/llm-bridge/internal/models"
)

const (
	BedrockAnthropicVersion = "bedrock-2023-05-31"

	defaultInvokeMaxTokens   = 4096000
	defaultInvokeTemperature = 1.0

	invalidClaudeResponse = "Invalid response from Claude API"
	proxyConversionError  = "proxy_conversion_error"
)

// converse stopReason -> OpenAI finish_reason
var converseStopReasons = map[string]string{
	"end_turn":      "stop",
	"max_tokens":    "length",
	"stop_sequence": "stop",
	"tool_use":      "tool_calls",
}

// OpenAI finish_reason -> Claude stop_reason
var claudeStopReasons = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"function_call":  "tool_use",
	"content_filter": "stop_sequence",
}

// ClaudeConverter translates between OpenAI chat completions and Claude.
// Requests for 3.5 models use the invoke body; 3.7 and newer use converse.
type ClaudeConverter struct {
	logger *slog.Logger
}

func NewClaudeConverter(logger *slog.Logger) *ClaudeConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &ClaudeConverter{logger: logger}
}

func (c *ClaudeConverter) SourceFormat() string { return FormatOpenAI }

func (c *ClaudeConverter) TargetFormat() string { return FormatClaude }

func (c *ClaudeConverter) ConvertRequest(payload models.Payload) Result {
	model, _ := payload["model"].(string)
	if detect.IsClaude37Or4(model) {
		return c.converseRequest(payload)
	}

	return c.invokeRequest(payload)
}

func (c *ClaudeConverter) invokeRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatClaude)
	system, _, messages := splitSystem(messageList(payload))
	if messages == nil {
		messages = []any{}
	}

	maxTokens := defaultInvokeMaxTokens
	if raw, ok := payload["max_tokens"]; ok && raw != nil {
		if n, ok := toInt(raw); ok {
			maxTokens = n
		} else {
			conv.warnf("ignoring max_tokens %v: not an integer, using %d", raw, defaultInvokeMaxTokens)
		}
	}

	temperature := defaultInvokeTemperature
	if raw, ok := payload["temperature"]; ok && raw != nil {
		if f, ok := toFloat(raw); ok {
			temperature = f
		} else {
			conv.warnf("ignoring temperature %v: not a number, using %v", raw, defaultInvokeTemperature)
		}
	}

	return conv.result(models.Payload{
		"anthropic_version": BedrockAnthropicVersion,
		"max_tokens":        maxTokens,
		"temperature":       temperature,
		"system":            system,
		"messages":          messages,
	})
}

func (c *ClaudeConverter) converseRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatClaude)
	system, hasSystem, rest := splitSystem(messageList(payload))

	inference := make(models.Payload)

	if raw, ok := payload["max_tokens"]; ok && raw != nil {
		if n, ok := toInt(raw); ok {
			inference["maxTokens"] = n
		} else {
			conv.warnf("ignoring max_tokens %v: not an integer", raw)
		}
	}

	if raw, ok := payload["temperature"]; ok && raw != nil {
		if f, ok := toFloat(raw); ok {
			inference["temperature"] = f
		} else {
			conv.warnf("ignoring temperature %v: not a number", raw)
		}
	}

	if raw, ok := payload["stop"]; ok && raw != nil {
		switch stop := raw.(type) {
		case string:
			inference["stopSequences"] = []any{stop}
		case []any:
			inference["stopSequences"] = stop
		default:
			conv.warnf("ignoring stop %v: expected a string or a list", raw)
		}
	}

	messages := make([]any, 0, len(rest)+1)
	if hasSystem {
		messages = append(messages, models.Payload{
			"role":    models.RoleUser,
			"content": []any{models.Payload{"text": system}},
		})
	}

	for i, raw := range rest {
		msg, ok := raw.(map[string]any)
		if !ok {
			conv.warnf("dropping message %d: not an object", i)
			continue
		}

		role, _ := msg["role"].(string)
		if role != models.RoleUser && role != models.RoleAssistant {
			conv.warnf("dropping message %d: unsupported role %q", i, role)
			continue
		}

		content := c.converseContent(conv, i, msg["content"])
		if len(content) == 0 {
			conv.warnf("dropping message %d: no usable content", i)
			continue
		}

		messages = append(messages, models.Payload{"role": role, "content": content})
	}

	out := models.Payload{"messages": messages}
	if len(inference) > 0 {
		out["inferenceConfig"] = inference
	}

	return conv.result(out)
}

func (c *ClaudeConverter) converseContent(conv *conversion, index int, content any) []any {
	switch v := content.(type) {
	case string:
		return []any{models.Payload{"text": v}}
	case []any:
		blocks := make([]any, 0, len(v))
		for j, item := range v {
			switch block := item.(type) {
			case string:
				blocks = append(blocks, models.Payload{"text": block})
			case map[string]any:
				if _, ok := block["text"]; ok {
					blocks = append(blocks, block)
				} else {
					conv.warnf("dropping content block %d of message %d: no text", j, index)
				}
			default:
				conv.warnf("dropping content block %d of message %d: unsupported type %T", j, index, item)
			}
		}

		return blocks
	default:
		return nil
	}
}

// ConvertResponse turns a Claude response into an OpenAI chat.completion.
// The generation is chosen from model, as for requests.
func (c *ClaudeConverter) ConvertResponse(response models.Payload, model string) Result {
	if detect.IsClaude37Or4(model) {
		return c.converseResponse(response, model)
	}

	return c.invokeResponse(response, model)
}

func (c *ClaudeConverter) invokeResponse(response models.Payload, model string) Result {
	conv := newConversion(c.logger, FormatClaude)

	text, err := invokeText(response)
	if err != nil {
		return conv.failure(models.Payload{
			"error":   invalidClaudeResponse,
			"details": err.Error(),
		}, err.Error())
	}

	finish, _ := response["stop_reason"].(string)
	if finish == "" {
		finish = "stop"
	}

	usage, _ := response["usage"].(map[string]any)
	input := intField(usage, "input_tokens")
	output := intField(usage, "output_tokens")

	resp := models.ModelResponse{
		Content:      text,
		Model:        model,
		FinishReason: finish,
		Usage:        models.NewUsage(input, output, input+output),
		RawResponse:  response,
	}

	return conv.result(resp.OpenAIPayload())
}

func invokeText(response models.Payload) (string, error) {
	content, ok := response["content"].([]any)
	if !ok || len(content) == 0 {
		return "", fmt.Errorf("response has no content")
	}

	first, ok := content[0].(map[string]any)
	if !ok {
		return "", fmt.Errorf("first content block is not an object")
	}

	raw, ok := first["text"]
	if !ok {
		return "", fmt.Errorf("first content block has no text")
	}

	text, _ := raw.(string)

	return text, nil
}

func (c *ClaudeConverter) converseResponse(response models.Payload, model string) Result {
	conv := newConversion(c.logger, FormatClaude)

	text, err := converseText(response)
	if err != nil {
		return conv.failure(models.ErrorPayload(err.Error(), proxyConversionError), err.Error())
	}

	stopReason, _ := response["stopReason"].(string)
	finish, ok := converseStopReasons[stopReason]
	if !ok {
		finish = "stop"
	}

	usage, _ := response["usage"].(map[string]any)
	input := intField(usage, "inputTokens")
	output := intField(usage, "outputTokens")
	total := input + output
	if t, ok := toInt(usage["totalTokens"]); ok {
		total = t
	}

	resp := models.ModelResponse{
		Content:      text,
		Model:        model,
		FinishReason: finish,
		Usage:        models.NewUsage(input, output, total),
		RawResponse:  response,
	}

	out := resp.OpenAIPayload()

	_, hasRead := usage["cacheReadInputTokens"]
	_, hasCreation := usage["cacheCreationInputTokens"]
	if hasRead || hasCreation {
		details := models.Payload{"cached_tokens": intField(usage, "cacheReadInputTokens")}
		if creation := intField(usage, "cacheCreationInputTokens"); creation > 0 {
			details["cache_creation_tokens"] = creation
		}

		if u, ok := out["usage"].(models.Payload); ok {
			u["prompt_tokens_details"] = details
		}
	}

	return conv.result(out)
}

// converseText returns the first text block of output.message.content. A
// block counts as text when its type is "text", or when it has no type and
// carries a text field (the plain converse block shape).
func converseText(response models.Payload) (string, error) {
	output, ok := response["output"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("response has no output")
	}

	message, ok := output["message"].(map[string]any)
	if !ok {
		return "", fmt.Errorf("response output has no message")
	}

	content, ok := message["content"].([]any)
	if !ok || len(content) == 0 {
		return "", fmt.Errorf("response message has no content")
	}

	for _, item := range content {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}

		blockType, hasType := block["type"].(string)
		text, isText := block["text"].(string)

		if (hasType && blockType == ContentTypeText) || (!hasType && isText) {
			return text, nil
		}
	}

	return "", fmt.Errorf("response message has no text block")
}

// ReverseConvertRequest turns a Claude Messages request into an OpenAI chat
// completion request.
func (c *ClaudeConverter) ReverseConvertRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatClaude)
	out := make(models.Payload)

	if model, ok := payload["model"]; ok {
		out["model"] = model
	}

	messages := make([]any, 0, len(messageList(payload))+1)
	if system, ok := payload["system"]; ok && !isEmpty(system) {
		messages = append(messages, models.Payload{"role": models.RoleSystem, "content": system})
	}
	messages = append(messages, messageList(payload)...)
	out["messages"] = messages

	if maxTokens, ok := payload["max_tokens"]; ok {
		out["max_completion_tokens"] = maxTokens
	}
	for _, key := range []string{"temperature", "stream"} {
		if v, ok := payload[key]; ok {
			out[key] = v
		}
	}

	if tools, ok := payload["tools"].([]any); ok {
		out["tools"] = transformTools(conv, tools)
	}

	return conv.result(out)
}

// transformTools converts Claude tool definitions to OpenAI function tools.
// Tools that are already in OpenAI shape pass through.
func transformTools(conv *conversion, tools []any) []any {
	transformed := make([]any, 0, len(tools))

	for i, tool := range tools {
		toolMap, ok := tool.(map[string]any)
		if !ok {
			conv.warnf("dropping tool %d: not an object", i)
			continue
		}

		if toolType, _ := toolMap["type"].(string); toolType == "function" {
			if _, hasFunction := toolMap["function"]; hasFunction {
				transformed = append(transformed, toolMap)
				continue
			}
		}

		name, ok := toolMap["name"].(string)
		if !ok {
			conv.warnf("dropping tool %d: no name", i)
			continue
		}

		function := models.Payload{"name": name}
		if description, ok := toolMap["description"]; ok {
			function["description"] = description
		}
		if schema, ok := toolMap["input_schema"]; ok {
			function["parameters"] = schema
		}

		transformed = append(transformed, models.Payload{
			"type":     "function",
			"function": function,
		})
	}

	return transformed
}

// ReverseConvertResponse turns an OpenAI chat.completion into a Claude
// message. The content list is never empty.
func (c *ClaudeConverter) ReverseConvertResponse(response models.Payload, model string) Result {
	conv := newConversion(c.logger, FormatClaude)

	choices, _ := response["choices"].([]any)
	if len(choices) == 0 {
		return conv.failure(claudeErrorPayload("no choices in response"), "no choices in response")
	}

	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)
	if message == nil {
		message, _ = choice["delta"].(map[string]any)
	}
	if message == nil {
		return conv.failure(claudeErrorPayload("no message in choice"), "no message in choice")
	}

	content := make([]any, 0, 1)
	if text := contentText(message["content"]); text != "" {
		content = append(content, models.Payload{"type": ContentTypeText, "text": text})
	}

	toolCalls, _ := message["tool_calls"].([]any)
	for i, raw := range toolCalls {
		call, _ := raw.(map[string]any)
		function, _ := call["function"].(map[string]any)
		name, _ := function["name"].(string)
		if name == "" {
			conv.warnf("dropping tool call %d: no function name", i)
			continue
		}

		input := map[string]any{}
		if args, _ := function["arguments"].(string); args != "" {
			if err := json.Unmarshal([]byte(args), &input); err != nil {
				conv.warnf("tool call %d has invalid arguments: %v", i, err)
				input = map[string]any{}
			}
		}

		id, _ := call["id"].(string)
		content = append(content, models.Payload{
			"type":  ContentTypeToolUse,
			"id":    strings.Replace(id, "call_", "toolu_", 1),
			"name":  name,
			"input": input,
		})
	}

	if len(content) == 0 {
		content = append(content, models.Payload{"type": ContentTypeText, "text": ""})
	}

	finish, _ := choice["finish_reason"].(string)
	stopReason, ok := claudeStopReasons[finish]
	if !ok {
		stopReason = "end_turn"
	}

	usage, _ := response["usage"].(map[string]any)

	id, _ := response["id"].(string)
	if id == "" {
		id = models.NewMessageID()
	}
	if m, _ := response["model"].(string); m != "" {
		model = m
	}

	return conv.result(models.Payload{
		"id":            id,
		"type":          "message",
		"role":          models.RoleAssistant,
		"model":         model,
		"content":       content,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage": models.Payload{
			"input_tokens":  intField(usage, "prompt_tokens"),
			"output_tokens": intField(usage, "completion_tokens"),
		},
	})
}

func claudeErrorPayload(message string) models.Payload {
	return models.Payload{
		"type": "error",
		"error": models.Payload{
			"type":    "api_error",
			"message": message,
		},
	}
}

func isEmpty(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	case []any:
		return len(s) == 0
	default:
		return false
	}
}
