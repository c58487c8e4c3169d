package pipeline

import "github.com/dgallion1/threadgest/internal/thread"

// Dedup drops posts whose full serialized form was already seen. The first
// occurrence wins and order is otherwise preserved. It returns the number
// of posts removed.
func Dedup(posts []thread.Post) ([]thread.Post, int) {
	seen := make(map[string]struct{}, len(posts))
	out := posts[:0:0]
	for _, p := range posts {
		k := p.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out, len(posts) - len(out)
}
