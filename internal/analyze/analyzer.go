package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/threadgest/internal/retry"
	"github.com/dgallion1/threadgest/internal/thread"
)

// ChunkError reports a chunk whose analysis failed. Index -1 is the final
// synthesis step.
type ChunkError struct {
	Index int
	Err   error
}

func (e *ChunkError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("synthesis: %v", e.Err)
	}
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// Insight is the model's analysis of one chunk. Exactly one of Text and
// Err is set; Error carries Err's message for JSON clients.
type Insight struct {
	Index int         `json:"index"`
	Posts int         `json:"posts"`
	Text  string      `json:"text,omitempty"`
	Error string      `json:"error,omitempty"`
	Err   *ChunkError `json:"-"`
}

// Failed reports whether the chunk produced no insight.
func (in Insight) Failed() bool { return in.Err != nil }

// Report is the outcome of analyzing every chunk of a run.
type Report struct {
	Model        string      `json:"model"`
	Insights     []Insight   `json:"insights"`
	Summary      string      `json:"summary,omitempty"`
	SummaryError string      `json:"summary_error,omitempty"`
	SummaryErr   *ChunkError `json:"-"`
	FlaggedPosts int         `json:"flagged_posts"`
}

// Errors lists every failure in the report in chunk order.
func (r *Report) Errors() []error {
	var errs []error
	for _, in := range r.Insights {
		if in.Err != nil {
			errs = append(errs, in.Err)
		}
	}
	if r.SummaryErr != nil {
		errs = append(errs, r.SummaryErr)
	}
	return errs
}

// Succeeded returns the text of every successful insight, in order.
func (r *Report) Succeeded() []string {
	var out []string
	for _, in := range r.Insights {
		if !in.Failed() {
			out = append(out, in.Text)
		}
	}
	return out
}

// Analyzer fans chunks out to a Client with bounded concurrency.
type Analyzer struct {
	client      Client
	policy      retry.Policy
	concurrency int
	log         *slog.Logger
}

func NewAnalyzer(client Client, concurrency int, log *slog.Logger) *Analyzer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Analyzer{
		client: client,
		policy: retry.Policy{
			MaxAttempts: 3,
			Backoff:     retry.Jittered(retry.Exponential(time.Second, 30*time.Second)),
		},
		concurrency: concurrency,
		log:         log,
	}
}

// WithPolicy returns a copy of the analyzer using p for per-chunk retries.
func (a *Analyzer) WithPolicy(p retry.Policy) *Analyzer {
	cp := *a
	cp.policy = p
	return &cp
}

// Analyze runs every chunk through the model. A failed chunk is reported in
// its Insight and never stops the others. When more than one chunk succeeds
// the insights are merged into Summary; with exactly one, that insight is
// the summary.
func (a *Analyzer) Analyze(ctx context.Context, chunks []thread.Chunk, progress func(done, total int)) *Report {
	report := &Report{
		Model:    a.client.Model(),
		Insights: make([]Insight, len(chunks)),
	}
	for _, c := range chunks {
		for _, p := range c.Posts {
			if LooksLikeInjection(p.Content) {
				report.FlaggedPosts++
			}
		}
	}
	if report.FlaggedPosts > 0 {
		a.log.Warn("posts contain instruction-like text", "count", report.FlaggedPosts)
	}

	type result struct {
		idx  int
		text string
		err  error
	}
	results := make(chan result, len(chunks))
	sem := make(chan struct{}, a.concurrency)

	for i, chunk := range chunks {
		go func(i int, chunk thread.Chunk) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- result{idx: i, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			prompt := BuildChunkPrompt(chunk.Text(), i, len(chunks))
			text, err := a.complete(ctx, prompt, i)
			results <- result{idx: i, text: text, err: err}
		}(i, chunk)
	}

	for done := 1; done <= len(chunks); done++ {
		r := <-results
		in := Insight{Index: r.idx, Posts: len(chunks[r.idx].Posts)}
		if r.err != nil {
			a.log.Error("chunk analysis failed", "chunk", r.idx, "error", r.err)
			in.Err = &ChunkError{Index: r.idx, Err: r.err}
			in.Error = in.Err.Error()
		} else {
			in.Text = r.text
		}
		report.Insights[r.idx] = in
		if progress != nil {
			progress(done, len(chunks))
		}
	}

	ok := report.Succeeded()
	switch {
	case len(ok) == 1:
		report.Summary = ok[0]
	case len(ok) > 1:
		summary, err := a.complete(ctx, BuildSynthesisPrompt(ok), -1)
		if err != nil {
			a.log.Error("synthesis failed", "error", err)
			report.SummaryErr = &ChunkError{Index: -1, Err: err}
			report.SummaryError = report.SummaryErr.Error()
		} else {
			report.Summary = summary
		}
	}
	return report
}

func (a *Analyzer) complete(ctx context.Context, prompt string, idx int) (string, error) {
	text, _, err := retry.Do(ctx, a.policy, isRetryable,
		func(attempt int, err error, wait time.Duration) {
			a.log.Warn("retryable analysis error", "chunk", idx, "attempt", attempt, "wait", wait, "error", err)
		},
		func(ctx context.Context, _ int) (string, error) {
			return a.client.Complete(ctx, SystemPrompt, prompt)
		},
	)
	return text, err
}

func isRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}
