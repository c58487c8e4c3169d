package parser

import (
	"fmt"
	"os"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

// Selectors maps the logical fields of a forum page to CSS selectors.
// A run treats its Selectors as immutable.
type Selectors struct {
	Pagination string `yaml:"pagination_selector" json:"pagination_selector"`
	LastPage   string `yaml:"last_page_selector" json:"last_page_selector"`
	Post       string `yaml:"post_selector" json:"post_selector"`
	Content    string `yaml:"content_selector" json:"content_selector"`
	Date       string `yaml:"date_selector" json:"date_selector"`
	PostNumber string `yaml:"post_number_selector" json:"post_number_selector"`
}

// DefaultSelectors matches the markup used by common vBulletin-style boards.
func DefaultSelectors() Selectors {
	return Selectors{
		Pagination: "ul.pagination_pages a",
		LastPage:   "a.pagination_last",
		Post:       "section.post_body",
		Content:    "div.content",
		Date:       "span.dateline_timestamp",
		PostNumber: "a.dateline_permalink",
	}
}

// Merge returns s with every non-empty field of o applied on top.
func (s Selectors) Merge(o Selectors) Selectors {
	if o.Pagination != "" {
		s.Pagination = o.Pagination
	}
	if o.LastPage != "" {
		s.LastPage = o.LastPage
	}
	if o.Post != "" {
		s.Post = o.Post
	}
	if o.Content != "" {
		s.Content = o.Content
	}
	if o.Date != "" {
		s.Date = o.Date
	}
	if o.PostNumber != "" {
		s.PostNumber = o.PostNumber
	}
	return s
}

// Validate checks that the post selector is set and every selector compiles.
func (s Selectors) Validate() error {
	if s.Post == "" {
		return fmt.Errorf("post_selector is required")
	}
	fields := []struct {
		name, sel string
	}{
		{"pagination_selector", s.Pagination},
		{"last_page_selector", s.LastPage},
		{"post_selector", s.Post},
		{"content_selector", s.Content},
		{"date_selector", s.Date},
		{"post_number_selector", s.PostNumber},
	}
	for _, f := range fields {
		if f.sel == "" {
			continue
		}
		if _, err := cascadia.Compile(f.sel); err != nil {
			return fmt.Errorf("%s %q: %w", f.name, f.sel, err)
		}
	}
	return nil
}

// Profiles is a named set of selector schemes, loaded from YAML:
//
//	default:
//	  post_selector: "article.message"
//	  content_selector: ".bbWrapper"
type Profiles map[string]Selectors

// LoadProfiles reads a YAML selector file. Each profile is merged over the
// built-in defaults so files only need to list what differs.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors file: %w", err)
	}
	var raw map[string]Selectors
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse selectors file: %w", err)
	}
	out := make(Profiles, len(raw))
	for name, sel := range raw {
		merged := DefaultSelectors().Merge(sel)
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		out[name] = merged
	}
	return out, nil
}

// Get returns the named profile. An empty name or "default" falls back to
// the built-in defaults when the file does not define it.
func (p Profiles) Get(name string) (Selectors, error) {
	if name == "" {
		name = "default"
	}
	if sel, ok := p[name]; ok {
		return sel, nil
	}
	if name == "default" {
		return DefaultSelectors(), nil
	}
	return Selectors{}, fmt.Errorf("unknown selector profile %q", name)
}
