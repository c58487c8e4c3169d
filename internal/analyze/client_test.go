package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClaudeClient_Complete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"## Opportunities\n- cheap laptops [#1]"}]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("key", "claude-test", WithBaseURL(srv.URL))
	text, err := c.Complete(context.Background(), "sys", "posts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "cheap laptops") {
		t.Errorf("unexpected text %q", text)
	}
	if got.System != "sys" || got.Model != "claude-test" || len(got.Messages) != 1 || got.Messages[0].Content != "posts" {
		t.Errorf("unexpected request %+v", got)
	}
	if snap := c.Stats.Snapshot(); snap.Count != 1 {
		t.Errorf("expected one recorded call, got %d", snap.Count)
	}
}

func TestClaudeClient_RetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", 529)
	}))
	defer srv.Close()

	c := NewClaudeClient("key", "m", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), "", "p")
	var re *RetryableError
	if !errors.As(err, &re) || re.StatusCode != 529 {
		t.Fatalf("expected retryable 529, got %v", err)
	}
}

func TestClaudeClient_EmptyReplyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	c := NewClaudeClient("key", "m", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), "", "p")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if snap := c.Stats.Snapshot(); snap.Failures != 1 {
		t.Errorf("expected one recorded failure, got %d", snap.Failures)
	}
}

func TestOpenAIClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Buy now."}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "gpt-test", WithBaseURL(srv.URL))
	text, err := c.Complete(context.Background(), "sys", "posts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Buy now." {
		t.Errorf("unexpected text %q", text)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("unexpected messages %+v", got.Messages)
	}
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "m", WithBaseURL(srv.URL))
	if _, err := c.Complete(context.Background(), "", "p"); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestOpenAIClient_ClientErrorNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewOpenAIClient("key", "m", WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), "", "p")
	if err == nil || isRetryable(err) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestNew_Providers(t *testing.T) {
	c, err := New("openai", "k", "gpt", "")
	if err != nil || c.Provider() != "openai" {
		t.Fatalf("expected openai client, got %v %v", c, err)
	}
	c, err = New("", "k", "claude", "")
	if err != nil || c.Provider() != "anthropic" {
		t.Fatalf("expected anthropic default, got %v %v", c, err)
	}
	if _, err := New("cohere", "k", "m", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

type bareClient struct{}

func (bareClient) Complete(context.Context, string, string) (string, error) { return "", nil }
func (bareClient) Model() string                                            { return "m" }
func (bareClient) Provider() string                                         { return "bare" }

func TestStatsOf(t *testing.T) {
	c := NewClaudeClient("k", "m")
	if StatsOf(c) != c.Stats {
		t.Error("expected claude stats")
	}
	o := NewOpenAIClient("k", "m")
	if StatsOf(o) != o.Stats {
		t.Error("expected openai stats")
	}
	if StatsOf(bareClient{}) != nil {
		t.Error("expected nil stats for a client without them")
	}
}
