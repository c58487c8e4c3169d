package pipeline

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dgallion1/threadgest/internal/parser"
)

// DefaultPagePattern appends the page number as a path segment.
const DefaultPagePattern = "{base}/{page}"

// DefaultMaxPages caps the page count of a run when no limit is configured.
const DefaultMaxPages = 10000

// ConfigError is an invalid run setting, reported before any request is made.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PageSpec is either an explicit page count or a request to discover it.
type PageSpec struct {
	Discover bool
	Count    int
}

// Discover asks the run to read the page count from the first page.
func Discover() PageSpec { return PageSpec{Discover: true} }

// Pages requests exactly n pages.
func Pages(n int) PageSpec { return PageSpec{Count: n} }

// ParsePages accepts "", "discover", "all" or a positive integer no greater
// than limit. A limit below 1 means DefaultMaxPages.
func ParsePages(s string, limit int) (PageSpec, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "", "discover", "all":
		return Discover(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return PageSpec{}, &ConfigError{Field: "pages", Value: s, Err: fmt.Errorf("not a number")}
	}
	if n < 1 {
		return PageSpec{}, &ConfigError{Field: "pages", Value: s, Err: fmt.Errorf("must be at least 1")}
	}
	if limit = pageLimit(limit); n > limit {
		return PageSpec{}, &ConfigError{Field: "pages", Value: s, Err: fmt.Errorf("must be at most %d", limit)}
	}
	return Pages(n), nil
}

func (p PageSpec) String() string {
	if p.Discover {
		return "discover"
	}
	return strconv.Itoa(p.Count)
}

// RunConfig describes one scrape run. It is fixed once the run starts.
type RunConfig struct {
	BaseURL     string
	Pages       PageSpec
	Concurrency int
	Selectors   parser.Selectors
	PagePattern string
	Dedup       bool
	// MaxPages bounds both explicit and discovered page counts.
	MaxPages    int
}

func (c RunConfig) maxPages() int { return pageLimit(c.MaxPages) }

func pageLimit(n int) int {
	if n < 1 {
		return DefaultMaxPages
	}
	return n
}

// Validate reports the first invalid setting as a *ConfigError.
func (c RunConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Field: "url", Value: c.BaseURL, Err: fmt.Errorf("must be an absolute http(s) URL")}
	}
	if !c.Pages.Discover && c.Pages.Count < 1 {
		return &ConfigError{Field: "pages", Value: strconv.Itoa(c.Pages.Count), Err: fmt.Errorf("must be at least 1")}
	}
	if !c.Pages.Discover && c.Pages.Count > c.maxPages() {
		return &ConfigError{Field: "pages", Value: strconv.Itoa(c.Pages.Count), Err: fmt.Errorf("must be at most %d", c.maxPages())}
	}
	if c.Concurrency < 1 {
		return &ConfigError{Field: "concurrency", Value: strconv.Itoa(c.Concurrency), Err: fmt.Errorf("must be at least 1")}
	}
	if c.PagePattern != "" && !strings.Contains(c.PagePattern, "{page}") {
		return &ConfigError{Field: "page_pattern", Value: c.PagePattern, Err: fmt.Errorf("must contain {page}")}
	}
	if err := c.Selectors.Validate(); err != nil {
		return &ConfigError{Field: "selectors", Err: err}
	}
	return nil
}

// PageURL builds the URL of page n from pattern, e.g. "{base}/{page}/".
func PageURL(pattern, base string, n int) string {
	if pattern == "" {
		pattern = DefaultPagePattern
	}
	return strings.NewReplacer(
		"{base}", strings.TrimRight(base, "/"),
		"{page}", strconv.Itoa(n),
	).Replace(pattern)
}
