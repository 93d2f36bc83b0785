package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, baseURL string) string {
	t.Helper()
	content := fmt.Sprintf(`
log:
  level: error
providers:
  openrouter:
    base_url: %s
    api_key: sk-test
models:
  - id: alpha
    name: Alpha
    provider: openrouter
    model_id: vendor/alpha
  - id: beta
    name: Beta
    provider: openrouter
    model_id: vendor/beta
`, baseURL)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestExecuteUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "Commands:")

	err := execute(context.Background(), []string{"bogus"}, &out)
	assert.ErrorContains(t, err, `unknown command "bogus"`)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(fmt.Errorf("serve: %w", context.Canceled)))
	assert.Equal(t, 2, ExitCode(fmt.Errorf("%w: bad flag", ErrUsage)))
	assert.Equal(t, 1, ExitCode(context.DeadlineExceeded))
}

func TestExecuteModels(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, execute(context.Background(), []string{"models"}, &out))

	assert.Contains(t, out.String(), "deepseek/deepseek-chat")
	assert.Contains(t, out.String(), "Gemma 2")
}

func TestExecuteAsk(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Model == "vendor/beta" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": "alpha says hi"}}},
		})
	}))
	defer upstream.Close()

	var out bytes.Buffer
	err := execute(context.Background(), []string{"ask", "--config", writeTestConfig(t, upstream.URL), "say", "hi"}, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "> say hi")
	assert.Contains(t, out.String(), "== Alpha (vendor/alpha)\nalpha says hi")
	assert.Contains(t, out.String(), "== Beta (vendor/beta)\nSorry, there was an error processing your request.")
}

func TestExecuteAskRequiresPrompt(t *testing.T) {
	var out bytes.Buffer
	err := execute(context.Background(), []string{"ask"}, &out)
	assert.ErrorContains(t, err, "requires a prompt")
	assert.ErrorIs(t, err, ErrUsage)
}
