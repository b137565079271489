package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Davincible/llm-bridge/internal/config"
)

var upstreamNames = []string{"openai", "claude", "gemini"}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the bridge configuration stored in ` + "$" + HomeEnv + ` or ~/.` + AppName + `.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for the proxy key and upstream details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration, including environment overrides.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

func init() {
	configShowCmd.Flags().Bool("yaml", false, "print the configuration as YAML with secrets masked")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("LLM Bridge Configuration Setup")
	color.Yellow("Press enter to keep the value in brackets.")

	cfg, err := promptConfig(bufio.NewReader(os.Stdin), os.Stdout, cfgMgr.Get())
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the bridge with: llmb start")

	return nil
}

// promptConfig asks for every setting, starting from current.
func promptConfig(in *bufio.Reader, out io.Writer, current *config.Config) (*config.Config, error) {
	cfg := *current

	ask := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}

		line, err := in.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}

		if v := strings.TrimSpace(line); v != "" {
			return v, nil
		}

		return def, nil
	}

	var err error
	if cfg.Host, err = ask("Listen host", cfg.Host); err != nil {
		return nil, err
	}

	port, err := ask("Listen port", fmt.Sprint(cfg.Port))
	if err != nil {
		return nil, err
	}
	if _, err := fmt.Sscan(port, &cfg.Port); err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", port, err)
	}

	if cfg.APIKey, err = ask("Proxy API key (optional)", cfg.APIKey); err != nil {
		return nil, err
	}

	for _, name := range upstreamNames {
		up, _ := cfg.Upstream(name)

		if up.BaseURL, err = ask(name+" base URL", up.BaseURL); err != nil {
			return nil, err
		}
		if up.APIKey, err = ask(name+" API key", up.APIKey); err != nil {
			return nil, err
		}

		switch name {
		case "openai":
			cfg.Upstreams.OpenAI = up
		case "claude":
			cfg.Upstreams.Claude = up
		case "gemini":
			cfg.Upstreams.Gemini = up
		}
	}

	return &cfg, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !cfgMgr.Exists() {
		color.Yellow("No configuration file found, showing defaults. Run 'llmb config init' to create one.")
	}

	masked := maskedConfig(cfg)

	if asYAML, _ := cmd.Flags().GetBool("yaml"); asYAML {
		data, err := config.YAML(masked)
		if err != nil {
			return err
		}
		fmt.Print(string(data))

		return nil
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", masked.Host)
	fmt.Printf("  %-15s: %d\n", "Port", masked.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", valueOrUnset(masked.APIKey))
	fmt.Printf("  %-15s: %s\n", "Log Level", masked.LogLevel)
	fmt.Printf("  %-15s: %s\n", "Timeout", masked.UpstreamTimeout())
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nUpstreams:")
	for _, name := range upstreamNames {
		up, _ := masked.Upstream(name)
		fmt.Printf("  - %s\n", name)
		fmt.Printf("    Base URL: %s\n", valueOrUnset(up.BaseURL))
		fmt.Printf("    API Key:  %s\n", valueOrUnset(up.APIKey))
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		color.Red("Configuration validation failed:")
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, problem := range verr.Errors {
				fmt.Printf("  - %s\n", problem)
			}
		}

		return err
	}

	color.Green("Configuration is valid!")
	return nil
}

func maskedConfig(cfg *config.Config) *config.Config {
	out := *cfg
	out.APIKey = maskString(cfg.APIKey)
	out.Upstreams.OpenAI.APIKey = maskString(cfg.Upstreams.OpenAI.APIKey)
	out.Upstreams.Claude.APIKey = maskString(cfg.Upstreams.Claude.APIKey)
	out.Upstreams.Gemini.APIKey = maskString(cfg.Upstreams.Gemini.APIKey)

	return &out
}

func maskString(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func valueOrUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
