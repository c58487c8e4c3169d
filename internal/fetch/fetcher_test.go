package fetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/threadgest/internal/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingPolicy computes the production backoff but never sleeps.
func recordingPolicy(attempts int, waits *[]time.Duration) retry.Policy {
	var mu sync.Mutex
	prod := retry.Exponential(time.Second, 30*time.Second)
	return retry.Policy{
		MaxAttempts: attempts,
		Backoff: func(attempt int) time.Duration {
			mu.Lock()
			defer mu.Unlock()
			*waits = append(*waits, prod(attempt))
			return 0
		},
	}
}

func TestFetch_SuccessSendsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "threadgest-test/1.0"}, testLogger())
	res := f.Fetch(context.Background(), NewGate(1), srv.URL)
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if string(res.Body) != "<html>ok</html>" {
		t.Errorf("unexpected body %q", res.Body)
	}
	if res.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", res.Attempts)
	}
	if gotUA != "threadgest-test/1.0" {
		t.Errorf("expected user agent %q, got %q", "threadgest-test/1.0", gotUA)
	}
}

func TestFetch_TimeoutExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	var waits []time.Duration
	f := New(Config{Timeout: 30 * time.Millisecond, Retry: recordingPolicy(3, &waits)}, testLogger())
	res := f.Fetch(context.Background(), NewGate(1), srv.URL)

	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Body != nil {
		t.Errorf("expected nil body, got %q", res.Body)
	}
	if res.Err.Kind != KindTransport || !res.Err.Timeout {
		t.Errorf("expected transport timeout, got kind=%s timeout=%v", res.Err.Kind, res.Err.Timeout)
	}
	if res.Attempts != 3 || res.Err.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d/%d", res.Attempts, res.Err.Attempts)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("expected backoff [1s 2s], got %v", waits)
	}
}

func TestFetch_RetriesServerErrorThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("page"))
	}))
	defer srv.Close()

	var waits []time.Duration
	f := New(Config{Retry: recordingPolicy(3, &waits)}, testLogger())
	res := f.Fetch(context.Background(), nil, srv.URL)
	if !res.OK() {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	var waits []time.Duration
	f := New(Config{Retry: recordingPolicy(3, &waits)}, testLogger())
	res := f.Fetch(context.Background(), nil, srv.URL)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Err.Kind != KindStatus || res.Err.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 status error, got %+v", res.Err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single request, got %d", hits.Load())
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	var waits []time.Duration
	f := New(Config{Retry: recordingPolicy(3, &waits)}, testLogger())
	res := f.Fetch(context.Background(), NewGate(1), url)
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Err.Kind != KindTransport {
		t.Errorf("expected transport error, got %s", res.Err.Kind)
	}
	if res.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestFetch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{}, testLogger())
	res := f.Fetch(ctx, NewGate(1), "http://127.0.0.1:1/")
	if res.OK() {
		t.Fatal("expected failure")
	}
	if res.Err.Kind != KindCanceled {
		t.Errorf("expected canceled, got %s", res.Err.Kind)
	}
}

func TestFetch_GateBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{}, testLogger())
	gate := NewGate(2)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := f.Fetch(context.Background(), gate, srv.URL); !res.OK() {
				t.Errorf("unexpected error: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent requests, saw %d", got)
	}
}

func TestGate_ReleasedOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := New(Config{}, testLogger())
	gate := NewGate(1)
	for range 3 {
		f.Fetch(context.Background(), gate, srv.URL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := gate.Acquire(ctx); err != nil {
		t.Fatalf("gate slot leaked: %v", err)
	}
	gate.Release()
}

func TestGate_Size(t *testing.T) {
	for _, tt := range []struct{ in, want int }{{4, 4}, {1, 1}, {0, 1}, {-2, 1}} {
		if got := NewGate(tt.in).Size(); got != tt.want {
			t.Errorf("NewGate(%d).Size() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestError_Retryable(t *testing.T) {
	cases := []struct {
		err  Error
		want bool
	}{
		{Error{Kind: KindTransport}, true},
		{Error{Kind: KindStatus, StatusCode: 429}, true},
		{Error{Kind: KindStatus, StatusCode: 502}, true},
		{Error{Kind: KindStatus, StatusCode: 403}, false},
		{Error{Kind: KindCanceled}, false},
	}
	for _, c := range cases {
		if got := c.err.Retryable(); got != c.want {
			t.Errorf("%+v: expected %v, got %v", c.err, c.want, got)
		}
	}
}
