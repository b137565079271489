package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_LoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := Default()
	cfg.Port = 8080
	cfg.APIKey = "proxy-key"
	cfg.Upstreams.Claude = Upstream{BaseURL: "https://claude.internal/deployments/d1", APIKey: "claude-key"}

	require.NoError(t, manager.Save(cfg))
	assert.True(t, manager.Exists(), "config file should exist after saving")
	assert.Equal(t, filepath.Join(tmpDir, DefaultYAMLFilename), manager.GetPath())

	loaded, err := NewManager(tmpDir).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", loaded.Host)
	assert.Equal(t, 8080, loaded.Port)
	assert.Equal(t, "proxy-key", loaded.APIKey)
	assert.Equal(t, "https://claude.internal/deployments/d1", loaded.Upstreams.Claude.BaseURL)
	assert.Equal(t, "claude-key", loaded.Upstreams.Claude.APIKey)
	assert.Equal(t, DefaultOpenAIBaseURL, loaded.Upstreams.OpenAI.BaseURL)
}

func TestConfig_SaveFilePermissions(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested")
	manager := NewManager(tmpDir)

	require.NoError(t, manager.Save(Default()))

	info, err := os.Stat(manager.GetPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	manager := NewManager(t.TempDir())
	assert.False(t, manager.Exists())

	cfg, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 300*time.Second, cfg.UpstreamTimeout())
	assert.Equal(t, DefaultGeminiBaseURL, cfg.Upstreams.Gemini.BaseURL)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_JSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	jsonConfig := `{
  "host": "0.0.0.0",
  "port": 9090,
  "upstreams": {"gemini": {"base_url": "https://gemini.internal/v1beta", "api_key": "g-key"}}
}`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultJSONFilename), []byte(jsonConfig), 0o644))

	manager := NewManager(tmpDir)
	assert.Equal(t, filepath.Join(tmpDir, DefaultJSONFilename), manager.GetPath())

	cfg, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "g-key", cfg.Upstreams.Gemini.APIKey)
	assert.Equal(t, DefaultOpenAIBaseURL, cfg.Upstreams.OpenAI.BaseURL)
}

func TestConfig_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultYAMLFilename), []byte("port: 7000\n"), 0o644))

	t.Setenv("LLMB_PORT", "7100")
	t.Setenv("LLMB_UPSTREAMS_CLAUDE_API_KEY", "from-env")
	t.Setenv("LLMB_LOG_LEVEL", "debug")

	cfg, err := NewManager(tmpDir).Load()
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, "from-env", cfg.Upstreams.Claude.APIKey)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestConfig_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, DefaultYAMLFilename), []byte("port: [unclosed"), 0o644))

	manager := NewManager(tmpDir)
	_, err := manager.Load()
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	cfg := manager.Get()
	assert.Equal(t, DefaultPort, cfg.Port, "Get falls back to defaults")
}

func TestConfig_GetCaches(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewManager(tmpDir)

	cfg := Default()
	cfg.Port = 7001
	require.NoError(t, manager.Save(cfg))

	first := manager.Get()
	require.NoError(t, os.WriteFile(manager.GetPath(), []byte("port: 7002\n"), 0o600))

	assert.Same(t, first, manager.Get())

	reloaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, 7002, reloaded.Port)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }, "port"},
		{"empty host", func(c *Config) { c.Host = "" }, "host"},
		{"zero timeout", func(c *Config) { c.UpstreamTimeoutSeconds = 0 }, "upstream_timeout_seconds"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"missing openai", func(c *Config) { c.Upstreams.OpenAI.BaseURL = "" }, "upstreams.openai.base_url"},
		{"bad claude url", func(c *Config) { c.Upstreams.Claude.BaseURL = "ftp://x" }, "upstreams.claude.base_url"},
		{"relative gemini url", func(c *Config) { c.Upstreams.Gemini.BaseURL = "/v1beta" }, "upstreams.gemini.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.HasError(tt.field), "expected a problem for %s, got %v", tt.field, verr.Errors)
		})
	}
}

func TestConfig_ValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.LogLevel = ""

	err := cfg.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Errors, 2)
	assert.Contains(t, err.Error(), "2 errors")
}

func TestConfig_Upstream(t *testing.T) {
	cfg := Default()

	up, ok := cfg.Upstream("openai")
	require.True(t, ok)
	assert.Equal(t, DefaultOpenAIBaseURL, up.BaseURL)

	_, ok = cfg.Upstream("mistral")
	assert.False(t, ok)

	assert.Equal(t, "127.0.0.1:6970", cfg.Address())
}
