package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thanos-chat/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 0.7, cfg.Gateway.Temperature)
	assert.Equal(t, 1000, cfg.Gateway.MaxTokens)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Timeout)
	assert.Len(t, cfg.Models, 4)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.Providers[models.ProviderOpenRouter].BaseURL)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
gateway:
  timeout: 15s
providers:
  openrouter:
    api_key: inline-key
models:
  - id: solo
    name: Solo
    provider: openrouter
    model_id: vendor/solo
    free_tier: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, 1000, cfg.Gateway.MaxTokens, "unset gateway fields keep defaults")
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "vendor/solo", cfg.Models[0].ModelID)

	or := cfg.Providers[models.ProviderOpenRouter]
	assert.Equal(t, "https://openrouter.ai/api/v1", or.BaseURL)
	assert.Equal(t, "inline-key", or.ResolvedAPIKey())
	assert.Equal(t, "Thanos AI Chat", or.Headers["X-Title"])
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad port":         "server:\n  port: 70000\n",
		"bad temperature":  "gateway:\n  temperature: 3\n",
		"bad max tokens":   "gateway:\n  max_tokens: -1\n",
		"bad log level":    "log:\n  level: loud\n",
		"bad header":       "providers:\n  openrouter:\n    headers:\n      \"X Title\": x\n",
		"duplicate model":  "models:\n  - {id: a, provider: openrouter, model_id: x}\n  - {id: a, provider: openrouter, model_id: y}\n",
		"missing upstream": "models:\n  - {id: a, provider: openrouter}\n",
		"empty models":     "models: []\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestResolvedAPIKeyPrefersEnv(t *testing.T) {
	t.Setenv("THANOS_TEST_KEY", "from-env")

	p := ProviderConfig{APIKey: "inline", APIKeyEnv: "THANOS_TEST_KEY"}
	assert.Equal(t, "from-env", p.ResolvedAPIKey())

	p.APIKeyEnv = "THANOS_TEST_KEY_UNSET"
	assert.Equal(t, "inline", p.ResolvedAPIKey())
}

func TestRequireCredentials(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")

	cfg := Default()
	err := cfg.RequireCredentials()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")

	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	assert.NoError(t, cfg.RequireCredentials())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().Models, cfg.Models)
	assert.Equal(t, "https://thanos.chat", cfg.Providers[models.ProviderOpenRouter].Headers["HTTP-Referer"])
}
