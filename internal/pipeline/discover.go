package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/threadgest/internal/fetch"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const discoveryCacheSize = 256

// Discoverer reads a thread's page count from its first page.
type Discoverer struct {
	fetcher *fetch.Fetcher
	cache   *expirable.LRU[string, int]
	log     *slog.Logger
}

// NewDiscoverer caches successful lookups for ttl; ttl <= 0 disables caching.
func NewDiscoverer(f *fetch.Fetcher, ttl time.Duration, log *slog.Logger) *Discoverer {
	d := &Discoverer{fetcher: f, log: log}
	if ttl > 0 {
		d.cache = expirable.NewLRU[string, int](discoveryCacheSize, nil, ttl)
	}
	return d
}

// MaxPage returns the highest page number linked from baseURL. Any fetch
// failure yields 1.
func (d *Discoverer) MaxPage(ctx context.Context, gate *fetch.Gate, baseURL string, sel parser.Selectors) int {
	key := baseURL + "\x00" + sel.LastPage + "\x00" + sel.Pagination
	if d.cache != nil {
		if n, ok := d.cache.Get(key); ok {
			return n
		}
	}

	res := d.fetcher.Fetch(ctx, gate, baseURL)
	if !res.OK() {
		d.log.Warn("page discovery failed, assuming one page", "url", baseURL, "error", res.Err)
		return 1
	}

	n := parser.MaxPage(res.Body, sel)
	if d.cache != nil {
		d.cache.Add(key, n)
	}
	return n
}
