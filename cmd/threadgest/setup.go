package main

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/chunker"
	"github.com/dgallion1/threadgest/internal/config"
	"github.com/dgallion1/threadgest/internal/fetch"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/retry"
)

func newFetcher(c config.Config, log *slog.Logger) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		UserAgent: c.UserAgent,
		Timeout:   c.FetchTimeout,
		Retry: retry.Policy{
			MaxAttempts: c.FetchMaxAttempts,
			Backoff:     retry.Exponential(c.FetchBackoffBase, 30*c.FetchBackoffBase),
		},
		RateLimit: c.FetchRateLimit,
	}, log)
}

func loadProfiles(c config.Config) (parser.Profiles, error) {
	if c.SelectorsFile == "" {
		return parser.Profiles{}, nil
	}
	return parser.LoadProfiles(c.SelectorsFile)
}

// newLLM returns nil when the selected provider has no API key.
func newLLM(c config.Config) (analyze.Client, error) {
	if c.LLMAPIKey() == "" {
		return nil, nil
	}
	client, err := analyze.New(c.LLMProvider, c.LLMAPIKey(), c.LLMModel(), c.LLMBaseURL())
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	return client, nil
}

func chunkConfig(c config.Config) chunker.Config {
	return chunker.Config{Size: c.ChunkSize, MaxTokens: c.ChunkMaxTokens}
}

// closeLLM releases idle connections held by the client.
func closeLLM(c analyze.Client) {
	if closer, ok := c.(interface{ Close() }); ok {
		closer.Close()
	}
}
