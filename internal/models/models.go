// Package models holds the canonical, OpenAI-shaped types exchanged between
// the gateway's routing, conversion and transport layers.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

// ErrInvalidRequest marks an inbound request that cannot be routed.
var ErrInvalidRequest = errors.New("invalid request")

// Payload is a JSON object as decoded by encoding/json.
type Payload = map[string]any

// Message is a single conversational turn. Content is either a string or a
// list of content blocks, exactly as received.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ModelRequest is the canonical view of an inbound chat request.
type ModelRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	Stream      bool
	Extra       map[string]any
}

var knownRequestFields = map[string]bool{
	"model":       true,
	"messages":    true,
	"temperature": true,
	"max_tokens":  true,
	"stream":      true,
}

// ParseModelRequest validates the routing-relevant fields of an OpenAI-shaped
// request. Unknown fields are collected into Extra untouched.
func ParseModelRequest(p Payload) (ModelRequest, error) {
	var req ModelRequest

	model, _ := p["model"].(string)
	req.Model = strings.TrimSpace(model)
	if req.Model == "" {
		return req, fmt.Errorf("%w: model must be provided", ErrInvalidRequest)
	}

	rawMessages, ok := p["messages"].([]any)
	if !ok || len(rawMessages) == 0 {
		return req, fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}

	for i, raw := range rawMessages {
		msg, ok := raw.(map[string]any)
		if !ok {
			return req, fmt.Errorf("%w: messages[%d] is not an object", ErrInvalidRequest, i)
		}
		role, _ := msg["role"].(string)
		if role == "" {
			return req, fmt.Errorf("%w: messages[%d] has no role", ErrInvalidRequest, i)
		}
		req.Messages = append(req.Messages, Message{Role: role, Content: msg["content"]})
	}

	if t, ok := p["temperature"].(float64); ok {
		req.Temperature = &t
	}
	if mt, ok := p["max_tokens"].(float64); ok {
		v := int(mt)
		req.MaxTokens = &v
	}
	req.Stream, _ = p["stream"].(bool)

	req.Extra = make(map[string]any)
	for k, v := range p {
		if !knownRequestFields[k] {
			req.Extra[k] = v
		}
	}

	return req, nil
}

// Usage records token accounting in OpenAI field names.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a Usage whose total is never below prompt+completion.
// A zero or short total is raised to the sum.
func NewUsage(prompt, completion, total int) Usage {
	if sum := prompt + completion; total < sum {
		total = sum
	}

	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

// Merge fills the counters u lacks from earlier. Streams report prompt
// tokens when they start and completion tokens when they end.
func (u Usage) Merge(earlier Usage) Usage {
	prompt, completion, total := u.PromptTokens, u.CompletionTokens, u.TotalTokens

	if prompt == 0 && earlier.PromptTokens > 0 {
		prompt, total = earlier.PromptTokens, 0
	}
	if completion == 0 && earlier.CompletionTokens > 0 {
		completion, total = earlier.CompletionTokens, 0
	}

	return NewUsage(prompt, completion, total)
}

// Payload renders the usage as a JSON object.
func (u Usage) Payload() Payload {
	return Payload{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}

// ModelResponse is the canonical result of a non-streaming completion.
type ModelResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
	RawResponse  Payload
}

// OpenAIPayload renders the response as an OpenAI chat.completion object.
func (r ModelResponse) OpenAIPayload() Payload {
	finish := r.FinishReason
	if finish == "" {
		finish = "stop"
	}

	return Payload{
		"id":      NewCompletionID(),
		"object":  ObjectChatCompletion,
		"created": time.Now().Unix(),
		"model":   r.Model,
		"choices": []any{
			Payload{
				"index": 0,
				"message": Payload{
					"role":    RoleAssistant,
					"content": r.Content,
				},
				"finish_reason": finish,
			},
		},
		"usage": r.Usage.Payload(),
	}
}

// NewCompletionID returns an OpenAI-style completion identifier.
func NewCompletionID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewMessageID returns a Claude-style message identifier.
func NewMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ErrorPayload builds the OpenAI-style error object used when a provider
// response cannot be converted.
func ErrorPayload(message, errType string) Payload {
	return Payload{
		"object":  "error",
		"message": message,
		"type":    errType,
		"param":   nil,
		"code":    nil,
	}
}

// Clone returns a shallow copy of p.
func Clone(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}

	return out
}
