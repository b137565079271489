// Package converters translates request, response and streaming payloads
// between the OpenAI-shaped canonical format and the native formats of
// Claude (invoke and converse), Gemini and Bedrock.
//
// Converters are stateless and safe for concurrent use. Streaming converters
// carry per-stream state and must be obtained once per stream from a Factory.
package converters

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Davincible/llm-bridge/internal/models"
)

const (
	FormatOpenAI  = "openai"
	FormatClaude  = "claude"
	FormatGemini  = "gemini"
	FormatBedrock = "bedrock"

	ContentTypeText    = "text"
	ContentTypeToolUse = "tool_use"
)

// Result is the outcome of a single conversion call. Warnings collect the
// non-fatal problems met along the way (dropped messages, rejected numeric
// values). When Err is set, Payload holds a provider-flavored error body that
// the transport may render as it sees fit.
type Result struct {
	Payload  models.Payload
	Metadata map[string]any
	Warnings []string
	Err      *ConversionError
}

// OK reports whether the conversion succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// ConversionError describes a provider payload that could not be converted.
type ConversionError struct {
	Provider string
	Message  string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s conversion failed: %s", e.Provider, e.Message)
}

type RequestConverter interface {
	ConvertRequest(payload models.Payload) Result
}

type ResponseConverter interface {
	ConvertResponse(response models.Payload, model string) Result
}

// Converter converts from SourceFormat to TargetFormat.
type Converter interface {
	RequestConverter
	ResponseConverter

	SourceFormat() string
	TargetFormat() string
}

// ReverseConverter is implemented by converters that can also translate
// from their target format back to their source format.
type ReverseConverter interface {
	ReverseConvertRequest(payload models.Payload) Result
	ReverseConvertResponse(response models.Payload, model string) Result
}

// conversion accumulates warnings for one call and mirrors them to the log.
type conversion struct {
	logger    *slog.Logger
	converter string
	warnings  []string
}

func newConversion(logger *slog.Logger, converter string) *conversion {
	return &conversion{logger: logger, converter: converter}
}

func (c *conversion) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn(msg, "converter", c.converter)
	c.warnings = append(c.warnings, msg)
}

func (c *conversion) result(payload models.Payload) Result {
	return Result{Payload: payload, Warnings: c.warnings}
}

func (c *conversion) failure(payload models.Payload, message string) Result {
	c.logger.Error("Response conversion failed", "converter", c.converter, "error", message)

	return Result{
		Payload:  payload,
		Warnings: c.warnings,
		Err:      &ConversionError{Provider: c.converter, Message: message},
	}
}

// splitSystem removes a leading system message from messages and returns its
// text. Only the first message is inspected.
func splitSystem(messages []any) (system string, found bool, rest []any) {
	if len(messages) == 0 {
		return "", false, messages
	}

	first, ok := messages[0].(map[string]any)
	if !ok || first["role"] != models.RoleSystem {
		return "", false, messages
	}

	return contentText(first["content"]), true, messages[1:]
}

// contentText flattens message content to plain text. Lists of content
// blocks are joined with a single space.
func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			switch block := item.(type) {
			case string:
				parts = append(parts, block)
			case map[string]any:
				if text, ok := block["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}

		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func messageList(payload models.Payload) []any {
	messages, _ := payload["messages"].([]any)
	return messages
}
