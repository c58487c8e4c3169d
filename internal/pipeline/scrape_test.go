package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgallion1/threadgest/internal/fetch"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/retry"
	"github.com/dgallion1/threadgest/internal/thread"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noWait(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Backoff: func(int) time.Duration { return 0 }}
}

func testFetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{Retry: noWait(1)}, testLogger())
}

func pageHTML(page, posts int) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 1; i <= posts; i++ {
		fmt.Fprintf(&b, `<section class="post_body">
<a class="dateline_permalink" href="/thread/7/post/%d-%d">#%d-%d</a>
<span class="dateline_timestamp">day %d</span>
<div class="content">post %d of page %d</div>
</section>`, page, i, page, i, page, i, page)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// threadServer serves /thread/7 as a pagination index and /thread/7/N as
// pages of posts. handle may override any page by returning true.
type threadServer struct {
	*httptest.Server
	hits  atomic.Int32
	pages int
	posts int
}

func newThreadServer(t *testing.T, pages, posts int, handle func(w http.ResponseWriter, page int) bool) *threadServer {
	t.Helper()
	ts := &threadServer{pages: pages, posts: posts}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)

		rest := strings.TrimPrefix(r.URL.Path, "/thread/7")
		if rest == "" {
			var b strings.Builder
			b.WriteString(`<html><body><ul class="pagination_pages">`)
			for i := 1; i <= ts.pages; i++ {
				fmt.Fprintf(&b, `<li><a href="/thread/7/%d">%d</a></li>`, i, i)
			}
			b.WriteString(`</ul>` + pageHTML(1, ts.posts) + `</body></html>`)
			io.WriteString(w, b.String())
			return
		}
		n, err := strconv.Atoi(strings.TrimPrefix(rest, "/"))
		if err != nil || n < 1 {
			http.NotFound(w, r)
			return
		}
		if handle != nil && handle(w, n) {
			return
		}
		io.WriteString(w, pageHTML(n, ts.posts))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *threadServer) config(pages PageSpec) RunConfig {
	return RunConfig{
		BaseURL:     ts.URL + "/thread/7",
		Pages:       pages,
		Concurrency: 4,
		Selectors:   parser.DefaultSelectors(),
	}
}

func postNumbers(r *Result) []string {
	out := make([]string, len(r.Posts))
	for i, p := range r.Posts {
		out[i] = p.Number
	}
	return out
}

func TestRun_AssemblesInPageOrder(t *testing.T) {
	ts := newThreadServer(t, 3, 2, func(w http.ResponseWriter, page int) bool {
		if page == 1 {
			time.Sleep(150 * time.Millisecond)
		}
		return false
	})

	var events []Progress
	s := NewScraper(testFetcher(), nil, testLogger())
	res, err := s.Run(context.Background(), ts.config(Pages(3)), func(p Progress) {
		events = append(events, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"#1-1", "#1-2", "#2-1", "#2-2", "#3-1", "#3-2"}
	if got := postNumbers(res); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(events))
	}
	if events[2].Page != 1 {
		t.Errorf("expected the delayed page 1 to finish last, got order %+v", events)
	}
	for i, e := range events {
		if e.Done != i+1 || e.Total != 3 || !e.OK || e.Posts != 2 {
			t.Errorf("event %d: unexpected %+v", i, e)
		}
	}
}

func TestRun_FailedPagesContributeNothing(t *testing.T) {
	ts := newThreadServer(t, 5, 1, func(w http.ResponseWriter, page int) bool {
		if page == 2 || page == 4 {
			w.WriteHeader(http.StatusNotFound)
			return true
		}
		return false
	})

	s := NewScraper(testFetcher(), nil, testLogger())
	res, err := s.Run(context.Background(), ts.config(Pages(5)), nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(postNumbers(res), ","); got != "#1-1,#3-1,#5-1" {
		t.Errorf("expected posts of pages 1, 3, 5, got %s", got)
	}
	if got := res.FailedPages(); len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("expected failed pages [2 4], got %v", got)
	}
	for _, f := range res.Failures {
		if f.Kind != fetch.KindStatus {
			t.Errorf("page %d: expected kind %q, got %q", f.Page, fetch.KindStatus, f.Kind)
		}
		if !strings.HasSuffix(f.URL, "/thread/7/"+strconv.Itoa(f.Page)) {
			t.Errorf("unexpected failure URL %q", f.URL)
		}
	}
}

func TestRun_TransportFailuresExhaustRetries(t *testing.T) {
	var mu sync.Mutex
	hits := map[int]int{}
	ts := newThreadServer(t, 5, 1, func(w http.ResponseWriter, page int) bool {
		mu.Lock()
		hits[page]++
		mu.Unlock()
		if page != 2 && page != 4 {
			return false
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return true
		}
		conn.Close()
		return true
	})

	f := fetch.New(fetch.Config{Retry: noWait(3)}, testLogger())
	defer f.Close()
	s := NewScraper(f, nil, testLogger())
	res, err := s.Run(context.Background(), ts.config(Pages(5)), nil)
	if err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(postNumbers(res), ","); got != "#1-1,#3-1,#5-1" {
		t.Errorf("expected posts of pages 1, 3, 5, got %s", got)
	}
	if got := res.FailedPages(); len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("expected failed pages [2 4], got %v", got)
	}
	for _, fl := range res.Failures {
		if fl.Kind != fetch.KindTransport {
			t.Errorf("page %d: expected kind %q, got %q", fl.Page, fetch.KindTransport, fl.Kind)
		}
		if fl.Attempts != 3 {
			t.Errorf("page %d: expected 3 attempts, got %d", fl.Page, fl.Attempts)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, page := range []int{2, 4} {
		// net/http may replay an idempotent request once on a dropped reused connection.
		if hits[page] < 3 {
			t.Errorf("page %d: expected at least 3 requests, got %d", page, hits[page])
		}
	}
	for _, page := range []int{1, 3, 5} {
		if hits[page] != 1 {
			t.Errorf("page %d: expected a single request, got %d", page, hits[page])
		}
	}
}

func TestRun_ClampsDiscoveredPageCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/thread/7" {
			io.WriteString(w, `<html><body><ul class="pagination_pages">
<li><a class="pagination_last" href="/thread/7/page-9?sid=90000000000">4611686018427387904</a></li>
</ul></body></html>`)
			return
		}
		io.WriteString(w, pageHTML(1, 1))
	}))
	defer srv.Close()

	s := NewScraper(testFetcher(), nil, testLogger())
	res, err := s.Run(context.Background(), RunConfig{
		BaseURL:     srv.URL + "/thread/7",
		Pages:       Discover(),
		Concurrency: 2,
		Selectors:   parser.DefaultSelectors(),
		MaxPages:    3,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPages != 3 {
		t.Errorf("expected discovered count clamped to 3, got %d", res.TotalPages)
	}
	if len(res.Posts) != 3 || len(res.Failures) != 0 {
		t.Errorf("expected 3 posts and no failures, got posts=%d failures=%d", len(res.Posts), len(res.Failures))
	}
}

func TestRun_DiscoversPageCount(t *testing.T) {
	ts := newThreadServer(t, 4, 1, nil)

	s := NewScraper(testFetcher(), nil, testLogger())
	res, err := s.Run(context.Background(), ts.config(Discover()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPages != 4 {
		t.Errorf("expected 4 pages, got %d", res.TotalPages)
	}
	if len(res.Posts) != 4 {
		t.Errorf("expected 4 posts, got %d", len(res.Posts))
	}
	if got := ts.hits.Load(); got != 5 {
		t.Errorf("expected discovery plus 4 page fetches, got %d requests", got)
	}
}

func TestRun_DiscoveryFailureFallsBackToOnePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/thread/7" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		io.WriteString(w, pageHTML(1, 2))
	}))
	defer srv.Close()

	s := NewScraper(testFetcher(), nil, testLogger())
	res, err := s.Run(context.Background(), RunConfig{
		BaseURL:     srv.URL + "/thread/7",
		Pages:       Discover(),
		Concurrency: 1,
		Selectors:   parser.DefaultSelectors(),
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalPages != 1 || len(res.Posts) != 2 {
		t.Errorf("expected one page with 2 posts, got pages=%d posts=%d", res.TotalPages, len(res.Posts))
	}
}

func TestRun_InvalidConfigMakesNoRequests(t *testing.T) {
	ts := newThreadServer(t, 2, 1, nil)
	s := NewScraper(testFetcher(), nil, testLogger())

	cases := map[string]func(*RunConfig){
		"zero concurrency": func(c *RunConfig) { c.Concurrency = 0 },
		"zero pages":       func(c *RunConfig) { c.Pages = Pages(0) },
		"too many pages":   func(c *RunConfig) { c.Pages = Pages(4611686018427387904) },
		"relative url":     func(c *RunConfig) { c.BaseURL = "/thread/7" },
		"no post selector": func(c *RunConfig) { c.Selectors.Post = "" },
		"bad pattern":      func(c *RunConfig) { c.PagePattern = "{base}?p=" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := ts.config(Pages(2))
			mutate(&cfg)
			res, err := s.Run(context.Background(), cfg, nil)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %v", err)
			}
			if res != nil {
				t.Error("expected nil result")
			}
		})
	}
	if got := ts.hits.Load(); got != 0 {
		t.Errorf("expected no requests, got %d", got)
	}
}

func TestRun_DedupRemovesRepeatedPosts(t *testing.T) {
	ts := newThreadServer(t, 3, 2, func(w http.ResponseWriter, page int) bool {
		// Every page repeats page 1, as forums do past the last page.
		io.WriteString(w, pageHTML(1, 2))
		return true
	})
	s := NewScraper(testFetcher(), nil, testLogger())

	cfg := ts.config(Pages(3))
	res, err := s.Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Posts) != 6 || res.Duplicates != 0 {
		t.Errorf("expected duplicates kept without dedup, got posts=%d dups=%d", len(res.Posts), res.Duplicates)
	}

	cfg.Dedup = true
	res, err = s.Run(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(postNumbers(res), ","); got != "#1-1,#1-2" || res.Duplicates != 4 {
		t.Errorf("expected first occurrences only, got %s (dups=%d)", got, res.Duplicates)
	}
}

func TestRun_CustomPagePattern(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RequestURI())
		mu.Unlock()
		io.WriteString(w, pageHTML(1, 1))
	}))
	defer srv.Close()

	s := NewScraper(testFetcher(), nil, testLogger())
	_, err := s.Run(context.Background(), RunConfig{
		BaseURL:     srv.URL + "/t/9/",
		Pages:       Pages(2),
		Concurrency: 1,
		Selectors:   parser.DefaultSelectors(),
		PagePattern: "{base}/page-{page}/",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	got := strings.Join(paths, " ")
	if !strings.Contains(got, "/t/9/page-1/") || !strings.Contains(got, "/t/9/page-2/") {
		t.Errorf("unexpected request paths %v", paths)
	}
}

func TestDiscoverer_CachesResults(t *testing.T) {
	ts := newThreadServer(t, 6, 1, nil)
	d := NewDiscoverer(testFetcher(), time.Minute, testLogger())
	gate := fetch.NewGate(1)
	sel := parser.DefaultSelectors()

	for range 3 {
		if n := d.MaxPage(context.Background(), gate, ts.URL+"/thread/7", sel); n != 6 {
			t.Fatalf("expected 6 pages, got %d", n)
		}
	}
	if got := ts.hits.Load(); got != 1 {
		t.Errorf("expected one request, got %d", got)
	}
}

func TestDedup_FirstOccurrenceWins(t *testing.T) {
	a := thread.Post{Number: "1", Timestamp: "t1", Content: "hello", URL: "u1"}
	b := thread.Post{Number: "2", Timestamp: "t2", Content: "hello", URL: "u2"}
	posts, removed := Dedup([]thread.Post{a, b, a, b, a})
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	if len(posts) != 2 || posts[0] != a || posts[1] != b {
		t.Errorf("unexpected result %+v", posts)
	}

	posts, removed = Dedup(nil)
	if len(posts) != 0 || removed != 0 {
		t.Errorf("expected empty result, got %v %d", posts, removed)
	}
}
