package converters

import (
	"fmt"
	"log/slog"

	"github.com/Davincible/llm-bridge/internal/models"
)

const geminiRoleModel = "model"

var geminiFinishReasons = map[string]string{
	"STOP":       "stop",
	"MAX_TOKENS": "length",
	"SAFETY":     "content_filter",
	"RECITATION": "content_filter",
	"OTHER":      "stop",
}

var openAIToGeminiFinish = map[string]string{
	"stop":           "STOP",
	"length":         "MAX_TOKENS",
	"content_filter": "SAFETY",
}

// Fixed safety policy attached to every Gemini request. It is not
// configurable.
var geminiSafetySettings = models.Payload{
	"category":  "HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"threshold": "BLOCK_LOW_AND_ABOVE",
}

// GeminiConverter translates between OpenAI chat completions and Gemini
// generateContent.
type GeminiConverter struct {
	logger *slog.Logger
}

func NewGeminiConverter(logger *slog.Logger) *GeminiConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &GeminiConverter{logger: logger}
}

func (c *GeminiConverter) SourceFormat() string { return FormatOpenAI }

func (c *GeminiConverter) TargetFormat() string { return FormatGemini }

// ConvertRequest builds a generateContent body. A lone user message becomes
// a scalar contents object; anything else becomes an array in which
// consecutive turns of the same role are merged.
func (c *GeminiConverter) ConvertRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatGemini)
	system, hasSystem, rest := splitSystem(messageList(payload))

	out := models.Payload{
		"generation_config": c.generationConfig(conv, payload),
		"safety_settings":   models.Clone(geminiSafetySettings),
	}

	if len(rest) == 1 {
		if msg, ok := rest[0].(map[string]any); ok && msg["role"] == models.RoleUser {
			text := contentText(msg["content"])
			if hasSystem {
				text = system + "\n\n" + text
			}

			out["contents"] = models.Payload{
				"role":  models.RoleUser,
				"parts": models.Payload{"text": text},
			}

			return conv.result(out)
		}
	}

	contents := make([]any, 0, len(rest)+1)
	if hasSystem {
		contents = append(contents, geminiTurn(models.RoleUser, system))
	}

	for i, raw := range rest {
		msg, ok := raw.(map[string]any)
		if !ok {
			conv.warnf("dropping message %d: not an object", i)
			continue
		}

		var role string
		switch msg["role"] {
		case models.RoleUser:
			role = models.RoleUser
		case models.RoleAssistant:
			role = geminiRoleModel
		default:
			conv.warnf("dropping message %d: unsupported role %v", i, msg["role"])
			continue
		}

		text := contentText(msg["content"])

		if n := len(contents); n > 0 {
			prev := contents[n-1].(models.Payload)
			if prev["role"] == role {
				parts := prev["parts"].(models.Payload)
				parts["text"] = parts["text"].(string) + "\n\n" + text
				continue
			}
		}

		contents = append(contents, geminiTurn(role, text))
	}

	out["contents"] = contents

	return conv.result(out)
}

func geminiTurn(role, text string) models.Payload {
	return models.Payload{
		"role":  role,
		"parts": models.Payload{"text": text},
	}
}

func (c *GeminiConverter) generationConfig(conv *conversion, payload models.Payload) models.Payload {
	config := make(models.Payload)

	if raw, ok := payload["max_tokens"]; ok && raw != nil {
		if n, ok := toInt(raw); ok {
			config["maxOutputTokens"] = n
		} else {
			conv.warnf("ignoring max_tokens %v: not an integer", raw)
		}
	}

	floats := []struct{ from, to string }{
		{"temperature", "temperature"},
		{"top_p", "topP"},
	}
	for _, f := range floats {
		raw, ok := payload[f.from]
		if !ok || raw == nil {
			continue
		}
		if v, ok := toFloat(raw); ok {
			config[f.to] = v
		} else {
			conv.warnf("ignoring %s %v: not a number", f.from, raw)
		}
	}

	return config
}

// ConvertResponse turns a generateContent response into an OpenAI
// chat.completion.
func (c *GeminiConverter) ConvertResponse(response models.Payload, model string) Result {
	conv := newConversion(c.logger, FormatGemini)

	candidate, text, err := geminiCandidateText(response)
	if err != nil {
		return conv.failure(models.ErrorPayload(err.Error(), proxyConversionError), err.Error())
	}

	reason, _ := candidate["finishReason"].(string)
	finish, ok := geminiFinishReasons[reason]
	if !ok {
		finish = "stop"
	}

	usage := c.ExtractUsage(response)

	resp := models.ModelResponse{
		Content:      text,
		Model:        model,
		FinishReason: finish,
		Usage:        usage,
		RawResponse:  response,
	}

	return conv.result(resp.OpenAIPayload())
}

// ExtractUsage reads usageMetadata from a response or streaming chunk.
func (c *GeminiConverter) ExtractUsage(response models.Payload) models.Usage {
	metadata, _ := response["usageMetadata"].(map[string]any)
	return geminiUsage(metadata)
}

func geminiUsage(metadata map[string]any) models.Usage {
	prompt := intField(metadata, "promptTokenCount")
	completion := intField(metadata, "candidatesTokenCount")
	total := prompt + completion
	if t, ok := toInt(metadata["totalTokenCount"]); ok {
		total = t
	}

	return models.NewUsage(prompt, completion, total)
}

func geminiCandidateText(response models.Payload) (map[string]any, string, error) {
	candidates, ok := response["candidates"].([]any)
	if !ok || len(candidates) == 0 {
		return nil, "", fmt.Errorf("response has no candidates")
	}

	candidate, ok := candidates[0].(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("first candidate is not an object")
	}

	content, ok := candidate["content"].(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("first candidate has no content")
	}

	parts, ok := content["parts"].([]any)
	if !ok || len(parts) == 0 {
		return nil, "", fmt.Errorf("first candidate has no parts")
	}

	part, ok := parts[0].(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("first part is not an object")
	}

	text, ok := part["text"].(string)
	if !ok {
		return nil, "", fmt.Errorf("first part has no text")
	}

	return candidate, text, nil
}

// ReverseConvertRequest turns a generateContent body into an OpenAI chat
// completion request. contents may be a single object or an array.
func (c *GeminiConverter) ReverseConvertRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatGemini)
	out := make(models.Payload)

	if model, ok := payload["model"]; ok {
		out["model"] = model
	}

	var turns []any
	switch contents := payload["contents"].(type) {
	case map[string]any:
		turns = []any{contents}
	case []any:
		turns = contents
	case nil:
	default:
		conv.warnf("ignoring contents of unsupported type %T", contents)
	}

	messages := make([]any, 0, len(turns)+1)

	for _, key := range []string{"system_instruction", "systemInstruction"} {
		if instruction, ok := payload[key].(map[string]any); ok {
			if text := geminiPartsText(instruction["parts"]); text != "" {
				messages = append(messages, models.Payload{"role": models.RoleSystem, "content": text})
			}
			break
		}
	}

	for i, raw := range turns {
		turn, ok := raw.(map[string]any)
		if !ok {
			conv.warnf("dropping contents entry %d: not an object", i)
			continue
		}

		role := models.RoleAssistant
		if turn["role"] == models.RoleUser {
			role = models.RoleUser
		}

		messages = append(messages, models.Payload{
			"role":    role,
			"content": geminiPartsText(turn["parts"]),
		})
	}
	out["messages"] = messages

	config, ok := payload["generation_config"].(map[string]any)
	if !ok {
		config, _ = payload["generationConfig"].(map[string]any)
	}
	mapping := []struct{ from, to string }{
		{"maxOutputTokens", "max_tokens"},
		{"temperature", "temperature"},
		{"topP", "top_p"},
	}
	for _, m := range mapping {
		if v, ok := config[m.from]; ok {
			out[m.to] = v
		}
	}

	return conv.result(out)
}

// geminiPartsText extracts text from parts given as one object or a list.
func geminiPartsText(parts any) string {
	switch p := parts.(type) {
	case map[string]any:
		text, _ := p["text"].(string)
		return text
	case []any:
		return contentText(p)
	default:
		return ""
	}
}

// ReverseConvertResponse turns an OpenAI chat.completion into a
// generateContent response.
func (c *GeminiConverter) ReverseConvertResponse(response models.Payload, model string) Result {
	conv := newConversion(c.logger, FormatGemini)

	choices, _ := response["choices"].([]any)
	if len(choices) == 0 {
		return conv.failure(models.ErrorPayload("no choices in response", proxyConversionError), "no choices in response")
	}

	choice, _ := choices[0].(map[string]any)
	message, _ := choice["message"].(map[string]any)

	finish, _ := choice["finish_reason"].(string)
	reason, ok := openAIToGeminiFinish[finish]
	if !ok {
		reason = "STOP"
	}

	usage, _ := response["usage"].(map[string]any)
	prompt := intField(usage, "prompt_tokens")
	completion := intField(usage, "completion_tokens")
	u := models.NewUsage(prompt, completion, intField(usage, "total_tokens"))

	if m, _ := response["model"].(string); m != "" {
		model = m
	}

	return conv.result(models.Payload{
		"candidates": []any{
			models.Payload{
				"index": 0,
				"content": models.Payload{
					"role":  geminiRoleModel,
					"parts": []any{models.Payload{"text": contentText(message["content"])}},
				},
				"finishReason": reason,
			},
		},
		"usageMetadata": models.Payload{
			"promptTokenCount":     u.PromptTokens,
			"candidatesTokenCount": u.CompletionTokens,
			"totalTokenCount":      u.TotalTokens,
		},
		"modelVersion": model,
	})
}
