package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thanos-chat/internal/catalog"
	"thanos-chat/internal/config"
	"thanos-chat/internal/models"
)

type recordedRequest struct {
	Path    string
	Auth    string
	Title   string
	Payload map[string]any
}

// upstream is a fake chat-completion API. handler picks the response per upstream model id.
type upstream struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, model string)
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	u.mu.Lock()
	u.requests = append(u.requests, recordedRequest{
		Path:    r.URL.Path,
		Auth:    r.Header.Get("Authorization"),
		Title:   r.Header.Get("X-Title"),
		Payload: payload,
	})
	u.mu.Unlock()

	model, _ := payload["model"].(string)
	u.handler(w, model)
}

func (u *upstream) recorded() []recordedRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]recordedRequest(nil), u.requests...)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": "gen-1",
		"choices": []any{
			map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func newTestClient(t *testing.T, up *upstream) *Client {
	t.Helper()

	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	descriptors := append(models.DefaultDescriptors(), models.Descriptor{
		ID:       "gemini-pro",
		Name:     "Gemini Pro",
		Provider: models.ProviderGemini,
		ModelID:  "gemini-pro",
	})
	cat, err := catalog.New(descriptors)
	require.NoError(t, err)

	client, err := New(cat, map[string]Endpoint{
		models.ProviderOpenRouter: {
			BaseURL: srv.URL + "/api/v1/",
			APIKey:  "sk-test",
			Headers: map[string]string{"X-Title": "Thanos AI Chat"},
		},
	}, srv.Client(), Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	return client
}

func TestSendMessageSuccess(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, model string) {
		writeCompletion(w, "answer from "+model)
	}}
	client := newTestClient(t, up)

	got := client.SendMessage(context.Background(), "Explain quantum computing in simple terms", "deepseek")
	assert.Equal(t, "answer from deepseek/deepseek-chat", got)

	requests := up.recorded()
	require.Len(t, requests, 1)
	req := requests[0]
	assert.Equal(t, "/api/v1/chat/completions", req.Path)
	assert.Equal(t, "Bearer sk-test", req.Auth)
	assert.Equal(t, "Thanos AI Chat", req.Title)
	assert.Equal(t, "deepseek/deepseek-chat", req.Payload["model"])
	assert.Equal(t, 0.7, req.Payload["temperature"])
	assert.Equal(t, float64(1000), req.Payload["max_tokens"])

	messages, ok := req.Payload["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "Explain quantum computing in simple terms"}, messages[0])
}

func TestSendMessageHTTPError(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, _ string) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom"}}`))
	}}
	client := newTestClient(t, up)

	assert.Equal(t, ErrorPlaceholder, client.SendMessage(context.Background(), "hi", "gemma"))

	_, err := client.Complete(context.Background(), "hi", "gemma")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "boom", statusErr.Message)
}

func TestSendMessageMissingContent(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, model string) {
		switch model {
		case "openai/gpt-3.5-turbo":
			_, _ = w.Write([]byte(`{"choices":[]}`))
		case "mistralai/mistral-7b-instruct:free":
			writeCompletion(w, "")
		default:
			_, _ = w.Write([]byte(`{"choices":[{"message":{}}]}`))
		}
	}}
	client := newTestClient(t, up)

	for _, id := range []string{"gpt35", "mistral", "gemma"} {
		assert.Equal(t, NoResponsePlaceholder, client.SendMessage(context.Background(), "hi", id), id)
	}
}

func TestSendMessageInvalidJSON(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`<html>gateway timeout</html>`))
	}}
	client := newTestClient(t, up)

	assert.Equal(t, ErrorPlaceholder, client.SendMessage(context.Background(), "hi", "deepseek"))
}

func TestSendMessageUnknownModel(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, _ string) {
		t.Error("upstream must not be called for an unknown model")
	}}
	client := newTestClient(t, up)

	assert.Equal(t, ErrorPlaceholder, client.SendMessage(context.Background(), "hi", "does-not-exist"))

	_, err := client.Complete(context.Background(), "hi", "does-not-exist")
	assert.ErrorIs(t, err, catalog.ErrUnknownModel)
}

func TestSendMessageProviderNotImplemented(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, _ string) {
		t.Error("upstream must not be called for an unconfigured provider")
	}}
	client := newTestClient(t, up)

	assert.Equal(t, NotImplementedPlaceholder, client.SendMessage(context.Background(), "hi", "gemini-pro"))
}

func TestSendMessageTransportError(t *testing.T) {
	cat, err := catalog.New(models.DefaultDescriptors())
	require.NoError(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	client, err := New(cat, map[string]Endpoint{
		models.ProviderOpenRouter: {BaseURL: baseURL},
	}, &http.Client{}, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	assert.Equal(t, ErrorPlaceholder, client.SendMessage(context.Background(), "hi", "deepseek"))
}

func TestSendMessageEmptyPrompt(t *testing.T) {
	up := &upstream{handler: func(w http.ResponseWriter, _ string) {
		t.Error("upstream must not be called for an empty prompt")
	}}
	client := newTestClient(t, up)

	_, err := client.Complete(context.Background(), "   ", "deepseek")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestNewFromConfig(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-env")

	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(body), `"temperature":0.2`))
		writeCompletion(w, "ok")
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Gateway.Temperature = 0.2
	or := cfg.Providers[models.ProviderOpenRouter]
	or.BaseURL = srv.URL
	cfg.Providers[models.ProviderOpenRouter] = or

	cat, err := catalog.New(cfg.Models)
	require.NoError(t, err)

	client, err := NewFromConfig(cfg, cat, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, "ok", client.SendMessage(context.Background(), "hi", "mistral"))
	assert.Equal(t, "Bearer sk-env", <-gotAuth)
}
