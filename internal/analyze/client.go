// Package analyze turns batches of forum posts into decision-oriented
// insights using an LLM completion endpoint.
package analyze

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Client is a chat-completion endpoint treated as an opaque text transform.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
	Provider() string
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Option customizes a client.
type Option func(*options)

type options struct {
	baseURL    string
	httpClient *http.Client
	maxTokens  int
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *options) { o.maxTokens = n }
}

func buildOptions(defaultBase string, opts []Option) options {
	o := options{
		baseURL:    defaultBase,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		maxTokens:  2048,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New returns the client for provider ("anthropic" or "openai").
func New(provider, apiKey, model, baseURL string) (Client, error) {
	var opts []Option
	if baseURL != "" {
		opts = append(opts, WithBaseURL(baseURL))
	}
	switch provider {
	case "", "anthropic":
		return NewClaudeClient(apiKey, model, opts...), nil
	case "openai":
		return NewOpenAIClient(apiKey, model, opts...), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic' or 'openai')", provider)
	}
}

// StatsOf returns the latency stats kept by c, or nil for clients that
// keep none.
func StatsOf(c Client) *LLMStats {
	switch c := c.(type) {
	case *ClaudeClient:
		return c.Stats
	case *OpenAIClient:
		return c.Stats
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
