package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/threadgest/internal/fetch"
	"github.com/dgallion1/threadgest/internal/metrics"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/thread"
)

// Progress is emitted once per finished page, in completion order.
type Progress struct {
	Page  int  `json:"page"`
	Done  int  `json:"done"`
	Total int  `json:"total"`
	OK    bool `json:"ok"`
	Posts int  `json:"posts"`
}

// PageFailure records a page that contributed no posts because its fetch failed.
type PageFailure struct {
	Page     int             `json:"page"`
	URL      string          `json:"url"`
	Kind     fetch.ErrorKind `json:"kind"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
}

// Result is the outcome of a scrape run. Posts are ordered by page, then by
// position within the page.
type Result struct {
	Posts      []thread.Post `json:"posts"`
	TotalPages int           `json:"total_pages"`
	Failures   []PageFailure `json:"failures"`
	Duplicates int           `json:"duplicates"`
	Duration   time.Duration `json:"duration"`
}

// FailedPages lists the page numbers that failed, ascending.
func (r *Result) FailedPages() []int {
	out := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Page
	}
	return out
}

// Scraper drives the fetch-and-extract pipeline for a thread.
type Scraper struct {
	fetcher    *fetch.Fetcher
	discoverer *Discoverer
	log        *slog.Logger
}

func NewScraper(f *fetch.Fetcher, d *Discoverer, log *slog.Logger) *Scraper {
	if d == nil {
		d = NewDiscoverer(f, 0, log)
	}
	return &Scraper{fetcher: f, discoverer: d, log: log}
}

// Run fetches every page of the thread under a gate of cfg.Concurrency slots
// and extracts their posts. Page failures are recorded in the result and never
// abort the run; the only error returned is a *ConfigError, before any
// request is made.
func (s *Scraper) Run(ctx context.Context, cfg RunConfig, progress func(Progress)) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := s.log.With("base_url", cfg.BaseURL)
	gate := fetch.NewGate(cfg.Concurrency)

	total := cfg.Pages.Count
	if cfg.Pages.Discover {
		total = s.discoverer.MaxPage(ctx, gate, cfg.BaseURL, cfg.Selectors)
		if limit := cfg.maxPages(); total > limit {
			log.Warn("discovered page count exceeds limit, clamping", "discovered", total, "max_pages", limit)
			total = limit
		}
		log.Info("discovered page count", "pages", total)
	}

	pages := make([]thread.Page, total)
	errs := make([]*fetch.Error, total)
	done := make(chan int, total)
	for i := range total {
		go func(i int) {
			n := i + 1
			url := PageURL(cfg.PagePattern, cfg.BaseURL, n)
			res := s.fetcher.Fetch(ctx, gate, url)
			page := thread.Page{Number: n, URL: url, Failed: !res.OK()}
			if res.OK() {
				page.Posts = parser.ExtractPosts(res.Body, cfg.Selectors, cfg.BaseURL, url)
			} else {
				errs[i] = res.Err
				log.Warn("page failed", "page", n, "url", url, "error", res.Err)
			}
			pages[i] = page
			done <- i
		}(i)
	}

	result := &Result{TotalPages: total}
	for completed := 1; completed <= total; completed++ {
		i := <-done
		p := pages[i]
		metrics.RecordPage(!p.Failed, len(p.Posts))
		if progress != nil {
			progress(Progress{Page: p.Number, Done: completed, Total: total, OK: !p.Failed, Posts: len(p.Posts)})
		}
	}

	// Final order follows page numbers, not completion order.
	for i, p := range pages {
		if p.Failed {
			result.Failures = append(result.Failures, pageFailure(p, errs[i]))
			continue
		}
		result.Posts = append(result.Posts, p.Posts...)
	}

	if cfg.Dedup {
		result.Posts, result.Duplicates = Dedup(result.Posts)
	}
	result.Duration = time.Since(start)

	log.Info("scrape complete",
		"pages", total,
		"concurrency", gate.Size(),
		"failed_pages", len(result.Failures),
		"posts", len(result.Posts),
		"duplicates", result.Duplicates,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func pageFailure(p thread.Page, err *fetch.Error) PageFailure {
	f := PageFailure{Page: p.Number, URL: p.URL, Kind: fetch.KindTransport}
	if err != nil {
		f.Kind = err.Kind
		f.Attempts = err.Attempts
		f.Error = err.Error()
	}
	return f
}
