package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// textContent collects visible text under n with whitespace collapsed.
func textContent(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "br", "p", "div", "li", "blockquote":
				buf.WriteByte(' ')
			}
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

// selectionText returns the collapsed text of every node in s.
func selectionText(s *goquery.Selection) string {
	parts := make([]string, 0, s.Length())
	for _, n := range s.Nodes {
		if t := textContent(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// first returns the first element under s matching selector, or false.
func first(s *goquery.Selection, selector string) (*goquery.Selection, bool) {
	if selector == "" {
		return nil, false
	}
	m := s.Find(selector).First()
	if m.Length() == 0 {
		return nil, false
	}
	return m, true
}
