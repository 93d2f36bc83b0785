package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"thanos-chat/internal/catalog"
	"thanos-chat/internal/models"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "thanos-chat/0.1"
	maxBodyBytes    = 4 << 20
	maxErrorBytes   = 64 * 1024
)

// Text returned by SendMessage in place of a completion.
const (
	ErrorPlaceholder          = "Sorry, there was an error processing your request."
	NoResponsePlaceholder     = "No response received"
	NotImplementedPlaceholder = "Model provider not implemented yet"
)

// DefaultTemperature and DefaultMaxTokens apply when Options leaves them unset.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

var (
	// ErrProviderNotImplemented means no endpoint is configured for a model's provider tag.
	ErrProviderNotImplemented = errors.New("model provider not implemented")
	// ErrEmptyCompletion means the upstream answered successfully without any message content.
	ErrEmptyCompletion = errors.New("upstream response did not include message content")
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
)

// StatusError reports a non-success HTTP status from the upstream.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream error status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream error status %d: %s", e.StatusCode, e.Message)
}

// Endpoint is one OpenAI-compatible chat-completion API.
type Endpoint struct {
	Name    string
	BaseURL string
	APIKey  string
	Headers map[string]string
}

func (e Endpoint) chatURL() string {
	return strings.TrimRight(e.BaseURL, "/") + "/chat/completions"
}

// Options tunes the request body sent upstream. A nil Temperature selects DefaultTemperature.
type Options struct {
	Temperature *float64
	MaxTokens   int
	Logger      *slog.Logger
}

// Client sends a single prompt to one configured model. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	catalog     *catalog.Catalog
	endpoints   map[string]Endpoint
	httpClient  *http.Client
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// New creates a gateway client. Endpoints are keyed by provider tag.
func New(cat *catalog.Catalog, endpoints map[string]Endpoint, httpClient *http.Client, opts Options) (*Client, error) {
	if cat == nil {
		return nil, errors.New("catalog must not be nil")
	}
	if httpClient == nil {
		return nil, errors.New("http client must not be nil")
	}

	eps := make(map[string]Endpoint, len(endpoints))
	for tag, ep := range endpoints {
		if strings.TrimSpace(ep.BaseURL) == "" {
			return nil, fmt.Errorf("endpoint %q: base url must not be empty", tag)
		}
		if ep.Name == "" {
			ep.Name = tag
		}
		eps[tag] = ep
	}

	temperature := DefaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		catalog:     cat,
		endpoints:   eps,
		httpClient:  httpClient,
		temperature: temperature,
		maxTokens:   opts.MaxTokens,
		logger:      opts.Logger,
	}, nil
}

// SendMessage returns the model's answer to prompt, or placeholder text on any failure.
// It never returns an error and never panics on upstream misbehaviour.
func (c *Client) SendMessage(ctx context.Context, prompt, modelID string) string {
	text, err := c.Complete(ctx, prompt, modelID)
	if err == nil {
		return text
	}

	switch {
	case errors.Is(err, ErrProviderNotImplemented):
		c.logger.Warn("model provider not implemented", "model", modelID, "err", err)
		return NotImplementedPlaceholder
	case errors.Is(err, ErrEmptyCompletion):
		c.logger.Warn("empty completion", "model", modelID)
		return NoResponsePlaceholder
	}

	attrs := []any{"model", modelID, "err", err}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		attrs = append(attrs, "status", statusErr.StatusCode)
	}
	c.logger.Error("ai api error", attrs...)
	return ErrorPlaceholder
}

// Complete performs one chat-completion exchange and reports failures as errors.
func (c *Client) Complete(ctx context.Context, prompt, modelID string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	descriptor, err := c.catalog.Lookup(modelID)
	if err != nil {
		return "", err
	}

	endpoint, ok := c.endpoints[descriptor.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrProviderNotImplemented, descriptor.Provider)
	}

	httpReq, err := c.newRequest(ctx, endpoint, buildChatPayload(descriptor, prompt, c.temperature, c.maxTokens))
	if err != nil {
		return "", err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s chat request failed: %w", endpoint.Name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return "", parseAPIError(httpResp)
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read provider response: %w", err)
	}

	return extractContent(body)
}

func (c *Client) newRequest(ctx context.Context, endpoint Endpoint, payload chatPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	if endpoint.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.APIKey)
	}

	for k, v := range endpoint.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

func buildChatPayload(d models.Descriptor, prompt string, temperature float64, maxTokens int) chatPayload {
	return chatPayload{
		Model:       d.ModelID,
		Messages:    []models.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

func extractContent(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("decode provider response: invalid JSON")
	}

	content := gjson.GetBytes(body, "choices.0.message.content")
	if content.Type != gjson.String || content.Str == "" {
		return "", ErrEmptyCompletion
	}
	return content.Str, nil
}

func parseAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", err)}
	}

	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return &StatusError{StatusCode: resp.StatusCode, Message: msg.String()}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}
