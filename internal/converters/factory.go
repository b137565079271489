package converters

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/Davincible/llm-bridge/internal/models"
)

// StreamingConstructor builds a fresh streaming converter for one stream.
type StreamingConstructor func() StreamingConverter

// ConfigurationError is returned when a lookup names a format pair or a
// streaming format nobody registered.
type ConfigurationError struct {
	Kind       string
	Key        string
	Registered []string
}

func (e *ConfigurationError) Error() string {
	registered := "none"
	if len(e.Registered) > 0 {
		registered = strings.Join(e.Registered, ", ")
	}

	return fmt.Sprintf("no %s registered for %q (registered: %s)", e.Kind, e.Key, registered)
}

// IsConfigurationError reports whether err is a factory lookup miss.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func converterKey(source, target string) string {
	return source + "_to_" + target
}

// Factory maps format pairs to converters and format names to streaming
// converter constructors. Each table has its own lock.
type Factory struct {
	convMu     sync.RWMutex
	converters map[string]Converter

	streamMu  sync.RWMutex
	streaming map[string]StreamingConstructor

	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}

	return &Factory{
		converters: make(map[string]Converter),
		streaming:  make(map[string]StreamingConstructor),
		logger:     logger,
	}
}

// NewDefaultFactory returns a factory with the built-in converters:
// openai->claude, openai->gemini, claude->bedrock and the claude, gemini and
// openai streaming formats.
func NewDefaultFactory(logger *slog.Logger) *Factory {
	f := NewFactory(logger)

	f.RegisterConverter(FormatOpenAI, FormatClaude, NewClaudeConverter(f.logger))
	f.RegisterConverter(FormatOpenAI, FormatGemini, NewGeminiConverter(f.logger))
	f.RegisterConverter(FormatClaude, FormatBedrock, NewBedrockConverter(f.logger))

	f.RegisterStreamingConverter(FormatClaude, func() StreamingConverter { return NewClaudeStreamConverter(f.logger) })
	f.RegisterStreamingConverter(FormatGemini, func() StreamingConverter { return NewGeminiStreamConverter(f.logger) })
	f.RegisterStreamingConverter(FormatOpenAI, func() StreamingConverter { return NewOpenAIStreamConverter(f.logger) })

	return f
}

// RegisterConverter stores converter under source_to_target, replacing any
// previous entry.
func (f *Factory) RegisterConverter(source, target string, converter Converter) {
	key := converterKey(source, target)

	f.convMu.Lock()
	_, exists := f.converters[key]
	f.converters[key] = converter
	f.convMu.Unlock()

	if exists {
		f.logger.Info("Replaced converter", "key", key)
	} else {
		f.logger.Debug("Registered converter", "key", key)
	}
}

func (f *Factory) RegisterStreamingConverter(format string, constructor StreamingConstructor) {
	f.streamMu.Lock()
	_, exists := f.streaming[format]
	f.streaming[format] = constructor
	f.streamMu.Unlock()

	if exists {
		f.logger.Info("Replaced streaming converter", "format", format)
	} else {
		f.logger.Debug("Registered streaming converter", "format", format)
	}
}

// GetConverter looks up source_to_target. When only target_to_source is
// registered, that converter is returned as is; its forward methods still
// translate target to source, so callers that need the reverse direction
// should use Resolve instead.
func (f *Factory) GetConverter(source, target string) (Converter, error) {
	b, err := f.Resolve(source, target)
	if err != nil {
		return nil, err
	}

	return b.Converter, nil
}

// Resolve looks up the converter for source->target and records whether it
// was found under the reverse key.
func (f *Factory) Resolve(source, target string) (Binding, error) {
	key := converterKey(source, target)

	f.convMu.RLock()
	defer f.convMu.RUnlock()

	if c, ok := f.converters[key]; ok {
		return Binding{Converter: c}, nil
	}

	if c, ok := f.converters[converterKey(target, source)]; ok {
		return Binding{Converter: c, Reversed: true}, nil
	}

	return Binding{}, &ConfigurationError{
		Kind:       "converter",
		Key:        key,
		Registered: sortedKeys(f.converters),
	}
}

// GetStreamingConverter builds a new streaming converter for format.
func (f *Factory) GetStreamingConverter(format string) (StreamingConverter, error) {
	f.streamMu.RLock()
	constructor, ok := f.streaming[format]
	if !ok {
		defer f.streamMu.RUnlock()

		return nil, &ConfigurationError{
			Kind:       "streaming converter",
			Key:        format,
			Registered: sortedKeys(f.streaming),
		}
	}
	f.streamMu.RUnlock()

	return constructor(), nil
}

// HasConverter reports whether source_to_target is registered. The reverse
// key is not consulted.
func (f *Factory) HasConverter(source, target string) bool {
	f.convMu.RLock()
	defer f.convMu.RUnlock()

	_, ok := f.converters[converterKey(source, target)]

	return ok
}

func (f *Factory) HasStreamingConverter(format string) bool {
	f.streamMu.RLock()
	defer f.streamMu.RUnlock()

	_, ok := f.streaming[format]

	return ok
}

// ListConverters returns the registered source_to_target keys, sorted.
func (f *Factory) ListConverters() []string {
	f.convMu.RLock()
	defer f.convMu.RUnlock()

	return sortedKeys(f.converters)
}

// ListStreamingConverters returns the registered streaming formats, sorted.
func (f *Factory) ListStreamingConverters() []string {
	f.streamMu.RLock()
	defer f.streamMu.RUnlock()

	return sortedKeys(f.streaming)
}

// ClearAll empties both tables.
func (f *Factory) ClearAll() {
	f.convMu.Lock()
	f.converters = make(map[string]Converter)
	f.convMu.Unlock()

	f.streamMu.Lock()
	f.streaming = make(map[string]StreamingConstructor)
	f.streamMu.Unlock()

	f.logger.Info("Cleared all converters")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

// Binding is a resolved converter together with the direction it must be
// driven in. A reversed binding calls the converter's Reverse* methods.
type Binding struct {
	Converter Converter
	Reversed  bool
}

func (b Binding) ConvertRequest(payload models.Payload) Result {
	if !b.Reversed {
		return b.Converter.ConvertRequest(payload)
	}

	rc, ok := b.Converter.(ReverseConverter)
	if !ok {
		return b.notReversible()
	}

	return rc.ReverseConvertRequest(payload)
}

func (b Binding) ConvertResponse(response models.Payload, model string) Result {
	if !b.Reversed {
		return b.Converter.ConvertResponse(response, model)
	}

	rc, ok := b.Converter.(ReverseConverter)
	if !ok {
		return b.notReversible()
	}

	return rc.ReverseConvertResponse(response, model)
}

func (b Binding) notReversible() Result {
	msg := fmt.Sprintf("converter %s cannot run in reverse",
		converterKey(b.Converter.SourceFormat(), b.Converter.TargetFormat()))

	return Result{
		Payload: models.ErrorPayload(msg, proxyConversionError),
		Err:     &ConversionError{Provider: b.Converter.TargetFormat(), Message: msg},
	}
}
