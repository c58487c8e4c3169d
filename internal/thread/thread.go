package thread

import (
	"fmt"
	"strings"
)

// Sentinel values for post fields that could not be extracted.
const (
	NoNumber    = "N/A"
	NoTimestamp = "Unknown"
	NoContent   = "No content"
)

// Post is a single forum post extracted from a thread page.
// Every field is always populated; missing values carry a sentinel.
type Post struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	URL       string `json:"url"`
}

// Line renders the post in the citation format used for LLM requests.
func (p Post) Line() string {
	return fmt.Sprintf("[%s | %s] %s", p.Number, p.Timestamp, p.Content)
}

// Key is the full serialized identity of a post, used for deduplication.
func (p Post) Key() string {
	return strings.Join([]string{p.Number, p.Timestamp, p.Content, p.URL}, "\x1f")
}

// Page is the extraction output of one thread page.
type Page struct {
	Number int    // 1-based page index
	URL    string // URL the page was fetched from
	Posts  []Post
	Failed bool // fetch failed after all retries
}

// Chunk is a bounded batch of posts serialized for one LLM request.
type Chunk struct {
	Index int    // Sequence number within the run
	Posts []Post // At most the configured chunk size
}

// Text joins the chunk's posts, one line per post.
func (c Chunk) Text() string {
	lines := make([]string, len(c.Posts))
	for i, p := range c.Posts {
		lines[i] = p.Line()
	}
	return strings.Join(lines, "\n")
}
