package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dgallion1/threadgest/internal/metrics"
	"github.com/dgallion1/threadgest/internal/retry"
	"golang.org/x/time/rate"
)

// DefaultUserAgent mimics a desktop browser; many forums refuse bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxBodyBytes limits the size of a fetched page.
const maxBodyBytes = 10 << 20

// ErrorKind classifies why a fetch produced no body.
type ErrorKind string

const (
	// KindTransport covers connection failures, DNS errors and timeouts.
	KindTransport ErrorKind = "transport"
	// KindStatus is a non-2xx response.
	KindStatus ErrorKind = "http_status"
	// KindCanceled means the caller's context ended first.
	KindCanceled ErrorKind = "canceled"
)

// Error describes a failed fetch.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Timeout    bool
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timeout after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.URL, e.Kind, e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	}
	return false
}

// Result is the outcome of one fetch. Body is nil exactly when Err is set.
type Result struct {
	URL        string
	Body       []byte
	StatusCode int
	Attempts   int
	Err        *Error
}

// OK reports whether a body was retrieved.
func (r Result) OK() bool { return r.Err == nil }

// Config controls request and retry behavior.
type Config struct {
	UserAgent string
	Headers   map[string]string
	Timeout   time.Duration // per attempt
	Retry     retry.Policy
	RateLimit float64 // requests per second across all runs; 0 disables
}

// DefaultConfig returns the standard fetch settings.
func DefaultConfig() Config {
	return Config{
		UserAgent: DefaultUserAgent,
		Timeout:   10 * time.Second,
		Retry:     retry.Default(),
	}
}

// Fetcher issues GET requests under a caller-supplied gate.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	headers    map[string]string
	policy     retry.Policy
	limiter    *rate.Limiter
	log        *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Fetcher {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.Backoff == nil {
		cfg.Retry.Backoff = def.Retry.Backoff
	}

	f := &Fetcher{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		headers:    cfg.Headers,
		policy:     cfg.Retry,
		log:        log,
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return f
}

// Fetch retrieves url, retrying transient failures. It never returns an
// error directly; failures are reported in Result.Err. A nil gate means
// the request is not bounded.
func (f *Fetcher) Fetch(ctx context.Context, gate *Gate, url string) Result {
	start := time.Now()
	defer func() { metrics.FetchDuration.Observe(time.Since(start).Seconds()) }()

	res, attempts, err := retry.Do(ctx, f.policy, isRetryable,
		func(attempt int, err error, wait time.Duration) {
			f.log.Warn("retrying fetch", "url", url, "attempt", attempt+1, "wait", wait, "error", err)
		},
		func(ctx context.Context, attempt int) (Result, error) {
			return f.attempt(ctx, gate, url)
		},
	)
	res.URL = url
	res.Attempts = attempts
	if err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			fe = &Error{Kind: KindCanceled, URL: url, Err: err}
		}
		fe.Attempts = attempts
		res.Body = nil
		res.Err = fe
	}
	return res
}

// attempt performs one request while holding a gate slot.
func (f *Fetcher) attempt(ctx context.Context, gate *Gate, url string) (Result, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Result{}, &Error{Kind: KindCanceled, URL: url, Err: err}
		}
	}
	if gate != nil {
		if err := gate.Acquire(ctx); err != nil {
			return Result{}, &Error{Kind: KindCanceled, URL: url, Err: err}
		}
		defer gate.Release()
	}
	metrics.FetchesInFlight.Inc()
	defer metrics.FetchesInFlight.Dec()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		ferr := classify(ctx, url, err)
		metrics.FetchAttempts.WithLabelValues(outcomeLabel(ferr)).Inc()
		return Result{}, ferr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		metrics.FetchAttempts.WithLabelValues(string(KindStatus)).Inc()
		return Result{StatusCode: resp.StatusCode}, &Error{
			Kind:       KindStatus,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		ferr := classify(ctx, url, fmt.Errorf("read body: %w", err))
		metrics.FetchAttempts.WithLabelValues(outcomeLabel(ferr)).Inc()
		return Result{}, ferr
	}
	metrics.FetchAttempts.WithLabelValues("ok").Inc()
	return Result{Body: body, StatusCode: resp.StatusCode}, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() {
	f.httpClient.CloseIdleConnections()
}

func classify(ctx context.Context, url string, err error) *Error {
	if ctx.Err() != nil {
		return &Error{Kind: KindCanceled, URL: url, Err: ctx.Err()}
	}
	fe := &Error{Kind: KindTransport, URL: url, Err: err}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		fe.Timeout = true
	}
	return fe
}

func isRetryable(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Retryable()
}

func outcomeLabel(e *Error) string {
	if e.Timeout {
		return "timeout"
	}
	return string(e.Kind)
}
