package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/llm-bridge/internal/config"
	"github.com/Davincible/llm-bridge/internal/converters"
	"github.com/Davincible/llm-bridge/internal/detect"
	"github.com/Davincible/llm-bridge/internal/providers"
)

var routeCmd = &cobra.Command{
	Use:   "route <model>",
	Short: "Show how a model would be routed",
	Long:  `Print the provider, upstream endpoints and converters used for a model name, without sending anything.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runRoute,
}

type routeInfo struct {
	Model           string
	Provider        string
	Version         string
	Endpoint        string
	StreamEndpoint  string
	Variant         string
	Converter       string
	StreamingFormat string
}

// describeRoute resolves model the same way the chat completions endpoint
// does.
func describeRoute(registry *providers.Registry, factory *converters.Factory, cfg *config.Config, model string) (routeInfo, error) {
	info := routeInfo{Model: model}

	provider, ok := registry.GetProvider(model)
	if !ok {
		return info, fmt.Errorf("no provider for model %q", model)
	}
	info.Provider = provider.Name()

	if version, ok := detect.ModelVersion(model); ok {
		info.Version = version
	}

	if gemini, ok := provider.(*providers.GeminiProvider); ok {
		info.Variant = gemini.ModelVariant(model)
	}

	up, _ := cfg.Upstream(provider.Name())
	if up.BaseURL != "" {
		info.Endpoint = provider.EndpointURL(up.BaseURL, model, false)
		info.StreamEndpoint = provider.StreamingEndpoint(up.BaseURL, model)
	}

	info.Converter = "passthrough"
	if provider.Name() != providers.NameOpenAI {
		binding, err := factory.Resolve(converters.FormatOpenAI, provider.Name())
		if err != nil {
			return info, err
		}
		info.Converter = binding.Converter.SourceFormat() + "_to_" + binding.Converter.TargetFormat()
	}

	info.StreamingFormat = converters.FormatOpenAI
	if provider.Name() == providers.NameGemini {
		info.StreamingFormat = converters.FormatGemini
	}

	return info, nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	registry := providers.Default(logger)
	factory := converters.NewDefaultFactory(logger)

	info, err := describeRoute(registry, factory, cfgMgr.Get(), args[0])
	if err != nil {
		return err
	}

	color.Blue("Route for %s:", info.Model)
	fmt.Printf("  %-17s: %s\n", "Provider", color.GreenString(info.Provider))
	fmt.Printf("  %-17s: %s\n", "Version", valueOrUnset(info.Version))
	if info.Variant != "" {
		fmt.Printf("  %-17s: %s\n", "Variant", info.Variant)
	}
	fmt.Printf("  %-17s: %s\n", "Endpoint", valueOrUnset(info.Endpoint))
	fmt.Printf("  %-17s: %s\n", "Stream endpoint", valueOrUnset(info.StreamEndpoint))
	fmt.Printf("  %-17s: %s\n", "Converter", info.Converter)
	fmt.Printf("  %-17s: %s\n", "Streaming format", info.StreamingFormat)

	return nil
}
