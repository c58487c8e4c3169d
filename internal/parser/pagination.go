package parser

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var digitRun = regexp.MustCompile(`\d+`)

// MaxPage returns the highest page number advertised by the pagination
// markup, or 1 when there is none. Only anchors whose visible text is purely
// numeric count; "Next", "…" and similar are ignored.
func MaxPage(body []byte, sel Selectors) int {
	if body == nil {
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 1
	}

	highest := 1
	if last, ok := first(doc.Selection, sel.LastPage); ok {
		if n, ok := numericText(last); ok {
			highest = n
		} else if href, ok := last.Attr("href"); ok {
			// The last digit run is the page; earlier ones tend to be thread IDs.
			if runs := digitRun.FindAllString(href, -1); len(runs) > 0 {
				if n, err := strconv.Atoi(runs[len(runs)-1]); err == nil && n > highest {
					highest = n
				}
			}
		}
	}

	if sel.Pagination != "" {
		doc.Find(sel.Pagination).Each(func(_ int, a *goquery.Selection) {
			if n, ok := numericText(a); ok && n > highest {
				highest = n
			}
		})
	}
	return highest
}

func numericText(s *goquery.Selection) (int, bool) {
	t := strings.TrimSpace(selectionText(s))
	if t == "" {
		return 0, false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
