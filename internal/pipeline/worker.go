package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/chunker"
)

// Worker processes a single scrape job.
type Worker struct {
	scraper  *Scraper
	analyzer *analyze.Analyzer
	log      *slog.Logger
	chunkCfg chunker.Config
}

// NewWorker creates a worker. analyzer may be nil when no LLM is configured;
// jobs that ask for analysis then finish as partial.
func NewWorker(scraper *Scraper, analyzer *analyze.Analyzer, log *slog.Logger, chunkCfg chunker.Config) *Worker {
	return &Worker{
		scraper:  scraper,
		analyzer: analyzer,
		log:      log,
		chunkCfg: chunkCfg,
	}
}

// Process runs scrape, batching and the optional analysis for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("run_id", job.ID)
	cfg := job.Config()

	// Phase 1: Fetch and extract
	job.SetStatus(StatusFetching, "fetching")
	result, err := w.scraper.Run(ctx, cfg, job.RecordPage)
	if err != nil {
		log.Error("scrape rejected", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "fetching")
		return
	}
	job.SetScrapeResult(result)
	for _, f := range result.Failures {
		job.AddError(fmt.Sprintf("page %d: %s", f.Page, f.Error))
	}
	if result.TotalPages > 0 && len(result.Failures) == result.TotalPages {
		log.Error("every page failed", "pages", result.TotalPages)
		job.SetStatus(StatusFailed, "fetching")
		return
	}
	hadErrors := len(result.Failures) > 0

	// Phase 2: Batch
	job.SetStatus(StatusBatching, "batching")
	chunkCfg := w.chunkCfg
	if job.ChunkSize > 0 {
		chunkCfg.Size = job.ChunkSize
	}
	chunks := chunker.Batch(result.Posts, chunkCfg)
	job.SetChunks(chunks)
	log.Info("batched posts", "posts", len(result.Posts), "chunks", len(chunks))

	// Phase 3: Analyze
	if job.Analyze && len(chunks) > 0 {
		if w.analyzer == nil {
			job.AddError("analysis requested but no LLM provider is configured")
			hadErrors = true
		} else {
			job.SetStatus(StatusAnalyzing, "analyzing")
			report := w.analyzer.Analyze(ctx, chunks, func(done, _ int) {
				job.SetChunksAnalyzed(done)
			})
			job.SetReport(report)
			for _, e := range report.Errors() {
				job.AddError(e.Error())
				hadErrors = true
			}
		}
	}

	if hadErrors {
		job.SetStatus(StatusPartial, "done")
	} else {
		job.SetStatus(StatusCompleted, "done")
	}
}
