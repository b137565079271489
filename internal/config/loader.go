package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LLMB_PORT or
// LLMB_UPSTREAMS_CLAUDE_API_KEY.
const EnvPrefix = "LLMB"

// load reads path (skipped when empty) and the environment on top of the
// defaults. Environment variables win over the file.
func load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))

		if err := v.ReadInConfig(); err != nil {
			return nil, &ConfigError{
				Op:  "read",
				Err: fmt.Errorf("failed to read %s: %w", path, err),
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{
			Op:  "unmarshal",
			Err: fmt.Errorf("failed to unmarshal config: %w", err),
		}
	}

	return &cfg, nil
}

// setDefaults registers every key so that AutomaticEnv can override keys
// absent from the file.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("api_key", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("upstream_timeout_seconds", d.UpstreamTimeoutSeconds)

	for _, name := range []string{"openai", "claude", "gemini"} {
		up, _ := d.Upstream(name)
		v.SetDefault("upstreams."+name+".base_url", up.BaseURL)
		v.SetDefault("upstreams."+name+".api_key", "")
	}
}
