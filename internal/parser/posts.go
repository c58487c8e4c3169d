package parser

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/dgallion1/threadgest/internal/thread"
)

// ExtractPosts returns the posts on one page in document order. A nil body
// or markup without post containers yields no posts. Missing sub-fields get
// sentinel values rather than dropping the post. Permalink hrefs resolve
// against pageURL, the address the body was fetched from; posts without one
// get baseURL#number. An empty pageURL falls back to baseURL.
func ExtractPosts(body []byte, sel Selectors, baseURL, pageURL string) []thread.Post {
	if body == nil || sel.Post == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	if pageURL == "" {
		pageURL = baseURL
	}
	var posts []thread.Post
	doc.Find(sel.Post).Each(func(_ int, container *goquery.Selection) {
		posts = append(posts, extractPost(container, sel, baseURL, pageURL))
	})
	return posts
}

func extractPost(container *goquery.Selection, sel Selectors, baseURL, pageURL string) thread.Post {
	p := thread.Post{
		Number:    thread.NoNumber,
		Timestamp: thread.NoTimestamp,
		Content:   thread.NoContent,
	}

	if c, ok := first(container, sel.Content); ok {
		if t := selectionText(c); t != "" {
			p.Content = t
		}
	}
	if d, ok := first(container, sel.Date); ok {
		if t := selectionText(d); t != "" {
			p.Timestamp = t
		}
	}

	var href string
	if n, ok := first(container, sel.PostNumber); ok {
		if t := selectionText(n); t != "" {
			p.Number = t
		}
		href = linkHref(n)
	}

	if href != "" {
		p.URL = resolve(pageURL, href)
	} else {
		p.URL = baseURL + "#" + p.Number
	}
	return p
}

// linkHref returns the element's own href, or that of its first linked descendant.
func linkHref(s *goquery.Selection) string {
	if h, ok := s.Attr("href"); ok && strings.TrimSpace(h) != "" {
		return strings.TrimSpace(h)
	}
	if h, ok := s.Find("a[href]").First().Attr("href"); ok {
		return strings.TrimSpace(h)
	}
	return ""
}

// resolve makes href absolute against base; unparseable input is returned as-is.
func resolve(base, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return href
	}
	return b.ResolveReference(ref).String()
}
