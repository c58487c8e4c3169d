package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/thread"
	"github.com/google/uuid"
)

// JobStatus represents the state of a scrape run.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusFetching  JobStatus = "fetching"
	StatusBatching  JobStatus = "batching"
	StatusAnalyzing JobStatus = "analyzing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks a single scrape run submitted through the API.
type Job struct {
	mu sync.Mutex

	ID      string    `json:"run_id"`
	Status  JobStatus `json:"status"`
	Phase   string    `json:"phase"`
	BaseURL string    `json:"url"`
	Analyze bool      `json:"analyze"`
	// ChunkSize overrides the worker's batch size when positive.
	ChunkSize int `json:"chunk_size,omitempty"`

	Progress JobProgress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	cfg      RunConfig
	posts    []thread.Post
	chunks   []thread.Chunk
	failures []PageFailure
	report   *analyze.Report
	errors   []string
}

// JobProgress tracks processing progress.
type JobProgress struct {
	TotalPages     int      `json:"total_pages"`
	PagesDone      int      `json:"pages_done"`
	PagesFailed    int      `json:"pages_failed"`
	Posts          int      `json:"posts"`
	Duplicates     int      `json:"duplicates"`
	TotalChunks    int      `json:"total_chunks"`
	ChunksAnalyzed int      `json:"chunks_analyzed"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job for cfg.
func NewJob(cfg RunConfig, analyze bool) *Job {
	now := time.Now()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Phase:     "queued",
		BaseURL:   cfg.BaseURL,
		Analyze:   analyze,
		CreatedAt: now,
		UpdatedAt: now,
		cfg:       cfg,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes jobs idle for longer than the TTL.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		idle := now.Sub(job.UpdatedAt)
		job.mu.Unlock()
		if idle > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordPage applies one page progress event.
func (j *Job) RecordPage(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalPages = p.Total
	j.Progress.PagesDone = p.Done
	if !p.OK {
		j.Progress.PagesFailed++
	}
	j.Progress.Posts += p.Posts
	j.UpdatedAt = time.Now()
}

// SetScrapeResult stores the assembled posts of a finished scrape.
func (j *Job) SetScrapeResult(r *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.posts = r.Posts
	j.failures = r.Failures
	j.Progress.TotalPages = r.TotalPages
	j.Progress.PagesFailed = len(r.Failures)
	j.Progress.Posts = len(r.Posts)
	j.Progress.Duplicates = r.Duplicates
	j.UpdatedAt = time.Now()
}

// SetChunks stores the batched posts.
func (j *Job) SetChunks(chunks []thread.Chunk) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.chunks = chunks
	j.Progress.TotalChunks = len(chunks)
	j.UpdatedAt = time.Now()
}

// SetChunksAnalyzed records how many chunks have an answer.
func (j *Job) SetChunksAnalyzed(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksAnalyzed = n
	j.UpdatedAt = time.Now()
}

// SetReport stores the analysis report.
func (j *Job) SetReport(r *analyze.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = r
	j.UpdatedAt = time.Now()
}

// Config returns the run configuration.
func (j *Job) Config() RunConfig {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cfg
}

// Posts returns the assembled posts. The slice must not be modified.
func (j *Job) Posts() []thread.Post {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.posts
}

// Chunks returns the batched posts.
func (j *Job) Chunks() []thread.Chunk {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.chunks
}

// Report returns the analysis report, or nil when the run was not analyzed.
func (j *Job) Report() *analyze.Report {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.report
}

// Done reports whether the job reached a final status.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.Status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID        string          `json:"run_id"`
	Status    JobStatus       `json:"status"`
	Phase     string          `json:"phase"`
	BaseURL   string          `json:"url"`
	Pages     string          `json:"pages"`
	Dedup     bool            `json:"dedup"`
	Analyze   bool            `json:"analyze"`
	Progress  JobProgress     `json:"progress"`
	Failures  []PageFailure   `json:"failed_pages"`
	Analysis  *analyze.Report `json:"analysis,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := j.Progress
	progress.Errors = append([]string{}, j.errors...)
	failures := append([]PageFailure{}, j.failures...)
	return JobSnapshot{
		ID:        j.ID,
		Status:    j.Status,
		Phase:     j.Phase,
		BaseURL:   j.BaseURL,
		Pages:     j.cfg.Pages.String(),
		Dedup:     j.cfg.Dedup,
		Analyze:   j.Analyze,
		Progress:  progress,
		Failures:  failures,
		Analysis:  j.report,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
