package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"thanos-chat/internal/catalog"
	"thanos-chat/internal/config"
)

const (
	defaultHTTPTimeout     = 60 * time.Second
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
)

// NewFromConfig builds a client for every configured provider.
func NewFromConfig(cfg config.Config, cat *catalog.Catalog, logger *slog.Logger) (*Client, error) {
	temperature := cfg.Gateway.Temperature
	return New(cat, EndpointsFromConfig(cfg), NewHTTPClient(cfg.Gateway.Timeout), Options{
		Temperature: &temperature,
		MaxTokens:   cfg.Gateway.MaxTokens,
		Logger:      logger,
	})
}

// EndpointsFromConfig maps provider configuration onto gateway endpoints keyed by provider tag.
func EndpointsFromConfig(cfg config.Config) map[string]Endpoint {
	endpoints := make(map[string]Endpoint, len(cfg.Providers))
	for name, p := range cfg.Providers {
		headers := make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			headers[k] = v
		}
		endpoints[name] = Endpoint{
			Name:    name,
			BaseURL: p.BaseURL,
			APIKey:  p.ResolvedAPIKey(),
			Headers: headers,
		}
	}
	return endpoints
}

// NewHTTPClient returns a pooled client. A zero timeout selects the default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: defaultKeepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
