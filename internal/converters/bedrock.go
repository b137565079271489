package converters

import (
	"log/slog"

	"github.com/Davincible/llm-bridge/internal/models"
)

var bedrockScalarFields = []string{"model", "max_tokens", "temperature", "top_p", "top_k", "stop_sequences"}

// BedrockConverter cleans a Claude Messages request so that Bedrock's invoke
// endpoint accepts it. Bedrock answers in Claude's own shape, so responses
// pass through unchanged.
type BedrockConverter struct {
	logger *slog.Logger
}

func NewBedrockConverter(logger *slog.Logger) *BedrockConverter {
	if logger == nil {
		logger = slog.Default()
	}

	return &BedrockConverter{logger: logger}
}

func (c *BedrockConverter) SourceFormat() string { return FormatClaude }

func (c *BedrockConverter) TargetFormat() string { return FormatBedrock }

// ConvertRequest copies the supported fields, strips cache_control from
// message content blocks and input_examples from tools, and sets
// anthropic_version when the caller did not.
func (c *BedrockConverter) ConvertRequest(payload models.Payload) Result {
	conv := newConversion(c.logger, FormatBedrock)
	out := make(models.Payload)

	for _, key := range bedrockScalarFields {
		if v, ok := payload[key]; ok {
			out[key] = v
		}
	}

	if system, ok := payload["system"]; ok {
		out["system"] = system
	}

	cacheControlRemoved := 0
	if raw, ok := payload["messages"].([]any); ok {
		messages := make([]any, 0, len(raw))
		for _, item := range raw {
			msg, ok := item.(map[string]any)
			if !ok {
				messages = append(messages, item)
				continue
			}

			cleaned, removed := cleanBedrockMessage(msg)
			cacheControlRemoved += removed
			messages = append(messages, cleaned)
		}
		out["messages"] = messages
	}

	examplesRemoved := 0
	if raw, ok := payload["tools"].([]any); ok {
		tools := make([]any, 0, len(raw))
		for _, item := range raw {
			tool, ok := item.(map[string]any)
			if !ok {
				tools = append(tools, item)
				continue
			}

			cleaned, removed := cleanBedrockTool(tool)
			examplesRemoved += removed
			tools = append(tools, cleaned)
		}
		out["tools"] = tools
	}

	if version, ok := payload["anthropic_version"]; ok && version != nil {
		out["anthropic_version"] = version
	} else {
		out["anthropic_version"] = BedrockAnthropicVersion
	}

	if cacheControlRemoved > 0 || examplesRemoved > 0 {
		c.logger.Debug("Stripped fields unsupported by Bedrock",
			"cache_control", cacheControlRemoved,
			"input_examples", examplesRemoved,
		)
	}

	res := conv.result(out)
	res.Metadata = map[string]any{
		"cache_control_removed":  cacheControlRemoved,
		"input_examples_removed": examplesRemoved,
	}

	return res
}

func cleanBedrockMessage(msg map[string]any) (models.Payload, int) {
	out := models.Clone(msg)
	removed := 0

	switch content := msg["content"].(type) {
	case string:
		out["content"] = []any{models.Payload{"type": ContentTypeText, "text": content}}
	case []any:
		blocks := make([]any, 0, len(content))
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok {
				blocks = append(blocks, item)
				continue
			}

			if _, has := block["cache_control"]; has {
				block = models.Clone(block)
				delete(block, "cache_control")
				removed++
			}
			blocks = append(blocks, block)
		}
		out["content"] = blocks
	}

	return out, removed
}

func cleanBedrockTool(tool map[string]any) (models.Payload, int) {
	out := models.Clone(tool)
	removed := 0

	if _, has := out["input_examples"]; has {
		delete(out, "input_examples")
		removed++
	}

	if custom, ok := out["custom"].(map[string]any); ok {
		if _, has := custom["input_examples"]; has {
			custom = models.Clone(custom)
			delete(custom, "input_examples")
			out["custom"] = custom
			removed++
		}
	}

	return out, removed
}

// ConvertResponse returns the Bedrock response unchanged.
func (c *BedrockConverter) ConvertResponse(response models.Payload, _ string) Result {
	return Result{Payload: response}
}
