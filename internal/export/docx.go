package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/fumiama/go-docx"
)

// WriteDOCX writes a Word report: title, summary, per-chunk insights and
// the posts themselves.
func WriteDOCX(w io.Writer, doc Document) error {
	d := docx.New().WithDefaultTheme()

	d.AddParagraph().AddText(title(doc)).Bold().Size("36")
	if doc.URL != "" {
		d.AddParagraph().AddText(doc.URL).Color("555555")
	}
	d.AddParagraph().AddText(fmt.Sprintf("%d posts", len(doc.Posts)))
	if doc.Duplicates > 0 {
		d.AddParagraph().AddText(fmt.Sprintf("%d duplicate posts removed", doc.Duplicates))
	}
	if len(doc.Failed) > 0 {
		d.AddParagraph().AddText(fmt.Sprintf("Pages that could not be fetched: %s", joinInts(doc.Failed))).Color("AA0000")
	}

	if r := doc.Report; r != nil {
		if r.Summary != "" {
			d.AddParagraph().AddText("Summary").Bold().Size("28")
			addBlock(d, r.Summary)
		}
		for _, in := range r.Insights {
			d.AddParagraph().AddText(fmt.Sprintf("Part %d (%d posts)", in.Index+1, in.Posts)).Bold().Size("24")
			if in.Failed() {
				d.AddParagraph().AddText("Analysis failed: " + in.Err.Error()).Color("AA0000")
				continue
			}
			addBlock(d, in.Text)
		}
	}

	d.AddParagraph().AddText("Posts").Bold().Size("28")
	for _, p := range doc.Posts {
		para := d.AddParagraph()
		para.AddText(fmt.Sprintf("[%s | %s] ", p.Number, p.Timestamp)).Bold()
		para.AddText(p.Content)
	}

	if _, err := d.WriteTo(w); err != nil {
		return fmt.Errorf("write docx: %w", err)
	}
	return nil
}

// addBlock adds one paragraph per non-blank line of text.
func addBlock(d *docx.Docx, text string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		d.AddParagraph().AddText(line)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}
