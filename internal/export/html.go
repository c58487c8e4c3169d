package export

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{if .URL}}<p><a href="{{.URL}}" rel="nofollow">{{.URL}}</a></p>{{end}}
<p>{{len .Posts}} posts{{if .Duplicates}}, {{.Duplicates}} duplicates removed{{end}}</p>
{{if .Failed}}<p class="failed">Pages that could not be fetched: {{.Failed}}</p>{{end}}
{{if .Summary}}<section class="summary"><h2>Summary</h2>{{.Summary}}</section>{{end}}
{{range .Insights}}<section class="insight"><h2>Part {{.Part}} ({{.Posts}} posts)</h2>{{if .Error}}<p class="failed">Analysis failed: {{.Error}}</p>{{else}}{{.Body}}{{end}}</section>
{{end}}<section class="posts"><h2>Posts</h2><ol>
{{range .Posts}}<li><a href="{{.URL}}" rel="nofollow">{{.Number}}</a> <time>{{.Timestamp}}</time><p>{{.Content}}</p></li>
{{end}}</ol></section>
</body></html>
`))

type htmlInsight struct {
	Part  int
	Posts int
	Body  template.HTML
	Error string
}

type htmlReport struct {
	Document
	Summary  template.HTML
	Insights []htmlInsight
}

// markdownRenderer turns model output into HTML and strips anything a model
// could smuggle in that a browser would execute.
type markdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newMarkdownRenderer() *markdownRenderer {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &markdownRenderer{md: goldmark.New(), policy: p}
}

func (r *markdownRenderer) render(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(r.policy.Sanitize(buf.String())), nil
}

// WriteHTML writes a standalone HTML report. Insights are rendered from
// Markdown and sanitized; post text is escaped by the template.
func WriteHTML(w io.Writer, doc Document) error {
	data := htmlReport{Document: doc}
	if r := doc.Report; r != nil {
		mr := newMarkdownRenderer()
		var err error
		if data.Summary, err = mr.render(r.Summary); err != nil {
			return fmt.Errorf("render summary: %w", err)
		}
		for _, in := range r.Insights {
			hi := htmlInsight{Part: in.Index + 1, Posts: in.Posts}
			if in.Failed() {
				hi.Error = in.Err.Error()
			} else if hi.Body, err = mr.render(in.Text); err != nil {
				return fmt.Errorf("render insight %d: %w", in.Index, err)
			}
			data.Insights = append(data.Insights, hi)
		}
	}
	data.Title = title(doc)
	if err := reportTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("write html: %w", err)
	}
	return nil
}
