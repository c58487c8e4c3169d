package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// LLM analysis
	LLMProvider     string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string

	// Fetching
	UserAgent        string
	FetchTimeout     time.Duration
	FetchMaxAttempts int
	FetchBackoffBase time.Duration
	FetchRateLimit   float64
	ConcurrencyLimit int
	PagePattern      string
	MaxPages         int

	// Selector profiles
	SelectorsFile   string
	SelectorProfile string

	// Batching and analysis
	ChunkSize          int
	ChunkMaxTokens     int
	AnalyzeConcurrency int

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Run state
	RunTTL            time.Duration
	DiscoveryCacheTTL time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("THREADGEST_API_KEY"),

		LLMProvider:     strings.ToLower(envOr("LLM_PROVIDER", "anthropic")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:   envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		UserAgent:        os.Getenv("USER_AGENT"),
		FetchTimeout:     envDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxAttempts: envInt("FETCH_MAX_ATTEMPTS", 3),
		FetchBackoffBase: envDuration("FETCH_BACKOFF_BASE", time.Second),
		FetchRateLimit:   envFloat("FETCH_RATE_LIMIT", 0),
		ConcurrencyLimit: envInt("CONCURRENCY_LIMIT", 50),
		PagePattern:      envOr("PAGE_URL_PATTERN", "{base}/{page}"),
		MaxPages:         envInt("MAX_PAGES", 10000),

		SelectorsFile:   os.Getenv("SELECTORS_FILE"),
		SelectorProfile: envOr("SELECTOR_PROFILE", "default"),

		ChunkSize:          envInt("CHUNK_SIZE", 50),
		ChunkMaxTokens:     envInt("CHUNK_MAX_TOKENS", 0),
		AnalyzeConcurrency: envInt("ANALYZE_CONCURRENCY", 4),

		WorkerCount:  envInt("WORKER_COUNT", 2),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 20),

		RunTTL:            envDuration("RUN_TTL", 1*time.Hour),
		DiscoveryCacheTTL: envDuration("DISCOVERY_CACHE_TTL", 10*time.Minute),
	}

	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.FetchMaxAttempts <= 0 {
		cfg.FetchMaxAttempts = 3
	}
	if cfg.FetchBackoffBase <= 0 {
		cfg.FetchBackoffBase = time.Second
	}
	if cfg.FetchRateLimit < 0 {
		cfg.FetchRateLimit = 0
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10000
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 50
	}
	if cfg.ChunkMaxTokens < 0 {
		cfg.ChunkMaxTokens = 0
	}
	if cfg.AnalyzeConcurrency <= 0 {
		cfg.AnalyzeConcurrency = 4
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 20
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 1 * time.Hour
	}

	return cfg
}

// Validate checks settings every command needs.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("LLM_PROVIDER must be anthropic or openai, got %q", c.LLMProvider)
	}
	if !strings.Contains(c.PagePattern, "{page}") {
		return fmt.Errorf("PAGE_URL_PATTERN must contain {page}, got %q", c.PagePattern)
	}
	return nil
}

// ValidateServer adds the settings required by the HTTP API.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("THREADGEST_API_KEY is required")
	}
	return nil
}

// LLMAPIKey returns the key of the selected provider, empty when unset.
func (c Config) LLMAPIKey() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// LLMModel returns the model of the selected provider.
func (c Config) LLMModel() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIModel
	}
	return c.AnthropicModel
}

// LLMBaseURL returns the endpoint override of the selected provider.
func (c Config) LLMBaseURL() string {
	if c.LLMProvider == "openai" {
		return c.OpenAIBaseURL
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
