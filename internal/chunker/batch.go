package chunker

import "github.com/dgallion1/threadgest/internal/thread"

// Config controls batching.
type Config struct {
	Size      int // Maximum posts per chunk.
	MaxTokens int // Optional token budget per chunk; 0 disables it.
}

// DefaultConfig returns 50 posts per chunk with no token budget.
func DefaultConfig() Config {
	return Config{Size: 50}
}

// Batch splits posts into contiguous chunks of at most cfg.Size posts,
// preserving order. With a token budget, a chunk also closes before the
// post that would push it over; a single post larger than the budget
// still gets a chunk of its own.
func Batch(posts []thread.Post, cfg Config) []thread.Chunk {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if len(posts) == 0 {
		return nil
	}

	var chunks []thread.Chunk
	start, tokens := 0, 0
	flush := func(end int) {
		chunks = append(chunks, thread.Chunk{
			Index: len(chunks),
			Posts: posts[start:end:end],
		})
		start, tokens = end, 0
	}

	for i, p := range posts {
		t := EstimateTokens(p.Line())
		full := i-start >= cfg.Size
		over := cfg.MaxTokens > 0 && i > start && tokens+t > cfg.MaxTokens
		if full || over {
			flush(i)
		}
		tokens += t
	}
	flush(len(posts))
	return chunks
}
