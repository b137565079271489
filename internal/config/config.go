package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 6970
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultUpstreamTimeout = 300
	DefaultYAMLFilename    = "config.yaml"
	DefaultJSONFilename    = "config.json"

	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// Upstream is the base URL and credential for one provider family.
type Upstream struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey  string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

type Upstreams struct {
	OpenAI Upstream `mapstructure:"openai" yaml:"openai" json:"openai"`
	Claude Upstream `mapstructure:"claude" yaml:"claude" json:"claude"`
	Gemini Upstream `mapstructure:"gemini" yaml:"gemini" json:"gemini"`
}

type Config struct {
	Host                   string    `mapstructure:"host" yaml:"host" json:"host"`
	Port                   int       `mapstructure:"port" yaml:"port" json:"port"`
	APIKey                 string    `mapstructure:"api_key" yaml:"api_key,omitempty" json:"api_key,omitempty"`
	LogLevel               string    `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	UpstreamTimeoutSeconds int       `mapstructure:"upstream_timeout_seconds" yaml:"upstream_timeout_seconds" json:"upstream_timeout_seconds"`
	Upstreams              Upstreams `mapstructure:"upstreams" yaml:"upstreams" json:"upstreams"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		LogLevel:               DefaultLogLevel,
		UpstreamTimeoutSeconds: DefaultUpstreamTimeout,
		Upstreams: Upstreams{
			OpenAI: Upstream{BaseURL: DefaultOpenAIBaseURL},
			Gemini: Upstream{BaseURL: DefaultGeminiBaseURL},
		},
	}
}

// Upstream returns the upstream configured for a provider name.
func (c *Config) Upstream(provider string) (Upstream, bool) {
	switch provider {
	case "openai":
		return c.Upstreams.OpenAI, true
	case "claude":
		return c.Upstreams.Claude, true
	case "gemini":
		return c.Upstreams.Gemini, true
	default:
		return Upstream{}, false
	}
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration and returns a *ValidationError listing
// every problem, or nil.
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 1 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port: %d is out of range", c.Port))
	}

	if c.Host == "" {
		problems = append(problems, "host: must not be empty")
	}

	if c.UpstreamTimeoutSeconds <= 0 {
		problems = append(problems, "upstream_timeout_seconds: must be positive")
	}

	level := strings.ToLower(c.LogLevel)
	valid := false
	for _, l := range logLevels {
		if level == l {
			valid = true
			break
		}
	}
	if !valid {
		problems = append(problems, fmt.Sprintf("log_level: %q is not one of %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}

	if c.Upstreams.OpenAI.BaseURL == "" {
		problems = append(problems, "upstreams.openai.base_url: required, openai is the fallback provider")
	}

	for _, name := range []string{"openai", "claude", "gemini"} {
		up, _ := c.Upstream(name)
		if up.BaseURL == "" {
			continue
		}

		u, err := url.Parse(up.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("upstreams.%s.base_url: %q is not an http(s) URL", name, up.BaseURL))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Errors: problems}
	}

	return nil
}

// Manager loads and caches the configuration stored under a base directory.
type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// GetPath returns the config file in use: an existing YAML file, an existing
// JSON file, or the YAML path that Save would create.
func (m *Manager) GetPath() string {
	yamlPath := filepath.Join(m.baseDir, DefaultYAMLFilename)
	if fileExists(yamlPath) {
		return yamlPath
	}

	jsonPath := filepath.Join(m.baseDir, DefaultJSONFilename)
	if fileExists(jsonPath) {
		return jsonPath
	}

	return yamlPath
}

func (m *Manager) Exists() bool {
	return fileExists(m.GetPath())
}

// Get returns the cached configuration, loading it on first use. A config
// that fails to load yields the defaults.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		return Default()
	}

	return cfg
}

// Load reads the config file and LLMB_ environment overrides, caches the
// result and returns it. A missing file is not an error.
func (m *Manager) Load() (*Config, error) {
	path := ""
	if m.Exists() {
		path = m.GetPath()
	}

	cfg, err := load(path)
	if err != nil {
		return nil, err
	}

	m.configValue.Store(cfg)

	return cfg, nil
}

// Save writes cfg as YAML and makes it the cached configuration.
func (m *Manager) Save(cfg *Config) error {
	path := filepath.Join(m.baseDir, DefaultYAMLFilename)

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return &ConfigError{Op: "write", Err: fmt.Errorf("create config dir: %w", err)}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return &ConfigError{Op: "marshal", Err: err}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return &ConfigError{Op: "write", Err: err}
	}

	m.configValue.Store(cfg)

	return nil
}

// YAML renders cfg the way Save writes it.
func YAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
