package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"thanos-chat/internal/models"
)

const (
	defaultPort           = 8080
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1000
	defaultTimeout        = 60 * time.Second
	defaultOpenRouterURL  = "https://openrouter.ai/api/v1"
	defaultOpenRouterEnv  = "OPENROUTER_API_KEY"
	defaultOpenRouterName = "Thanos AI Chat"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Log       LogConfig                 `yaml:"log"`
	Gateway   GatewayConfig             `yaml:"gateway"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Models    []models.Descriptor       `yaml:"models"`
}

// ServerConfig defines listener configuration.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GatewayConfig holds the sampling parameters sent with every chat completion.
type GatewayConfig struct {
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ProviderConfig captures authentication and routing info for a provider.
type ProviderConfig struct {
	APIKey    string  `yaml:"api_key"`
	APIKeyEnv string  `yaml:"api_key_env"`
	BaseURL   string  `yaml:"base_url"`
	Headers   Headers `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with a provider request.
type Headers map[string]string

// ResolvedAPIKey returns the key from the configured environment variable,
// falling back to the inline api_key.
func (p ProviderConfig) ResolvedAPIKey() string {
	if p.APIKeyEnv != "" {
		if v := strings.TrimSpace(os.Getenv(p.APIKeyEnv)); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.APIKey)
}

// Default returns the built-in configuration: OpenRouter plus the default model lineup.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: defaultPort},
		Log:    LogConfig{Level: "info", Format: "text"},
		Gateway: GatewayConfig{
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
			Timeout:     defaultTimeout,
		},
		Providers: map[string]ProviderConfig{
			models.ProviderOpenRouter: {
				APIKeyEnv: defaultOpenRouterEnv,
				BaseURL:   defaultOpenRouterURL,
				Headers:   Headers{"X-Title": defaultOpenRouterName},
			},
		},
		Models: models.DefaultDescriptors(),
	}
}

// Load reads YAML configuration from disk on top of the defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
	}

	if err := cfg.parse(data); err != nil {
		return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) parse(data []byte) error {
	defaults := c.Providers
	c.Providers = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig, len(defaults))
	}

	// Providers named in the file inherit unset fields from the built-in entry of the same name.
	for name, def := range defaults {
		p, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = def
			continue
		}
		if p.BaseURL == "" {
			p.BaseURL = def.BaseURL
		}
		if p.APIKey == "" && p.APIKeyEnv == "" {
			p.APIKeyEnv = def.APIKeyEnv
		}
		if p.Headers == nil {
			p.Headers = def.Headers
		}
		c.Providers[name] = p
	}
	return nil
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be one of \"text\" or \"json\"", c.Log.Format)
	}

	if c.Gateway.Temperature < 0 || c.Gateway.Temperature > 2 {
		return fmt.Errorf("gateway.temperature must be within [0, 2], got %v", c.Gateway.Temperature)
	}
	if c.Gateway.MaxTokens <= 0 {
		return fmt.Errorf("gateway.max_tokens must be positive, got %d", c.Gateway.MaxTokens)
	}
	if c.Gateway.Timeout < 0 {
		return fmt.Errorf("gateway.timeout must not be negative, got %s", c.Gateway.Timeout)
	}

	for name, provider := range c.Providers {
		if err := validateProvider(name, provider); err != nil {
			return err
		}
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, model := range c.Models {
		if err := validateModel(model); err != nil {
			return err
		}
		if _, dup := seen[model.ID]; dup {
			return fmt.Errorf("model %q is configured more than once", model.ID)
		}
		seen[model.ID] = struct{}{}
	}

	return nil
}

// RequireCredentials checks that every provider referenced by a model has an API key.
// It is separate from Validate so that commands which never call upstream can run without secrets.
func (c Config) RequireCredentials() error {
	for _, model := range c.Models {
		provider, ok := c.Providers[model.Provider]
		if !ok {
			continue
		}
		if provider.ResolvedAPIKey() == "" {
			if provider.APIKeyEnv != "" {
				return fmt.Errorf("provider %s: api key missing, set %s or api_key", model.Provider, provider.APIKeyEnv)
			}
			return fmt.Errorf("provider %s: api_key must be provided", model.Provider)
		}
	}
	return nil
}

func validateProvider(name string, provider ProviderConfig) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	if strings.TrimSpace(provider.BaseURL) == "" {
		return fmt.Errorf("provider %s: base_url must be provided", name)
	}

	for headerKey := range provider.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("provider %s: header %q is not a valid canonical HTTP header", name, headerKey)
		}
	}

	return nil
}

func validateModel(model models.Descriptor) error {
	if strings.TrimSpace(model.ID) == "" {
		return fmt.Errorf("model id must not be empty")
	}
	if strings.TrimSpace(model.Provider) == "" {
		return fmt.Errorf("model %s: provider must not be empty", model.ID)
	}
	if strings.TrimSpace(model.ModelID) == "" {
		return fmt.Errorf("model %s: model_id must not be empty", model.ID)
	}
	return nil
}

// ParseLevel maps a config level name onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q must be one of debug, info, warn, error", level)
	}
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')) {
			return false
		}
	}
	return true
}
