// Package export writes a run's posts and analysis in the formats offered by
// the CLI and the HTTP API.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/thread"
)

// Format is an output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatText Format = "txt"
	FormatDOCX Format = "docx"
	FormatHTML Format = "html"
)

// Document is everything an export can contain. Report may be nil.
type Document struct {
	Title      string
	URL        string
	Posts      []thread.Post
	Report     *analyze.Report
	Failed     []int
	Duplicates int
}

// ParseFormat accepts a format name or a file extension with its dot.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "csv":
		return FormatCSV, nil
	case "txt", "text":
		return FormatText, nil
	case "docx":
		return FormatDOCX, nil
	case "html", "htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unsupported export format: %q (use csv, txt, docx or html)", s)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Write renders doc to w in format f.
func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, doc.Posts)
	case FormatText:
		return WriteText(w, doc.Posts)
	case FormatDOCX:
		return WriteDOCX(w, doc)
	case FormatHTML:
		return WriteHTML(w, doc)
	}
	return fmt.Errorf("unsupported export format: %q", f)
}

func title(doc Document) string {
	if doc.Title != "" {
		return doc.Title
	}
	if doc.URL != "" {
		return "Thread digest: " + doc.URL
	}
	return "Thread digest"
}
