package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dgallion1/threadgest/internal/export"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/pipeline"
	"github.com/dgallion1/threadgest/internal/thread"
	"github.com/go-chi/chi/v5"
)

const maxRequestBytes = 1 << 20

// runRequest is the body of POST /api/runs. Pages may be a number or the
// string "discover".
type runRequest struct {
	URL         string           `json:"url"`
	Pages       json.RawMessage  `json:"pages"`
	Concurrency int              `json:"concurrency"`
	ChunkSize   int              `json:"chunk_size"`
	Dedup       bool             `json:"dedup"`
	Analyze     bool             `json:"analyze"`
	Profile     string           `json:"profile"`
	PagePattern string           `json:"page_pattern"`
	Selectors   parser.Selectors `json:"selectors"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := s.runConfig(req)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.ChunkSize < 0 {
		jsonError(w, "chunk_size must not be negative", http.StatusBadRequest)
		return
	}
	if req.Analyze && !s.orchestrator.AnalysisEnabled() {
		jsonError(w, "analysis requested but no LLM provider is configured", http.StatusBadRequest)
		return
	}

	job := pipeline.NewJob(cfg, req.Analyze)
	job.ChunkSize = req.ChunkSize
	if err := s.orchestrator.Submit(job); err != nil {
		s.log.Warn("run rejected", "run_id", job.ID, "error", err)
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	s.log.Info("run queued", "run_id", job.ID, "url", cfg.BaseURL, "pages", cfg.Pages.String())
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   job.ID,
		"status":   pipeline.StatusQueued,
		"poll_url": fmt.Sprintf("/api/runs/%s", job.ID),
	})
}

// runConfig fills request gaps from server defaults and validates the result.
func (s *Server) runConfig(req runRequest) (pipeline.RunConfig, error) {
	pages, err := pipeline.ParsePages(strings.Trim(string(req.Pages), `"`), s.cfg.MaxPages)
	if err != nil {
		return pipeline.RunConfig{}, err
	}
	sel, err := s.profiles.Get(req.Profile)
	if err != nil {
		return pipeline.RunConfig{}, err
	}

	cfg := pipeline.RunConfig{
		BaseURL:     strings.TrimSpace(req.URL),
		Pages:       pages,
		Concurrency: req.Concurrency,
		Selectors:   sel.Merge(req.Selectors),
		PagePattern: req.PagePattern,
		Dedup:       req.Dedup,
		MaxPages:    s.cfg.MaxPages,
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = s.cfg.ConcurrencyLimit
	}
	if cfg.PagePattern == "" {
		cfg.PagePattern = s.cfg.PagePattern
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.RunConfig{}, err
	}
	return cfg, nil
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) *pipeline.Job {
	job := s.orchestrator.GetJob(chi.URLParam(r, "runID"))
	if job == nil {
		jsonError(w, "run not found", http.StatusNotFound)
	}
	return job
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleRunPosts(w http.ResponseWriter, r *http.Request) {
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}
	if !job.Done() {
		jsonError(w, "run not finished", http.StatusConflict)
		return
	}
	snap := job.Snapshot()
	posts := job.Posts()
	if posts == nil {
		posts = []thread.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": snap.ID,
		"status": snap.Status,
		"count":  len(posts),
		"posts":  posts,
	})
}

func (s *Server) handleRunExport(w http.ResponseWriter, r *http.Request) {
	job := s.lookupJob(w, r)
	if job == nil {
		return
	}
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !job.Done() {
		jsonError(w, "run not finished", http.StatusConflict)
		return
	}

	snap := job.Snapshot()
	failed := make([]int, len(snap.Failures))
	for i, f := range snap.Failures {
		failed[i] = f.Page
	}
	doc := export.Document{
		URL:        snap.BaseURL,
		Posts:      job.Posts(),
		Report:     job.Report(),
		Failed:     failed,
		Duplicates: snap.Progress.Duplicates,
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, doc); err != nil {
		s.log.Error("export failed", "run_id", snap.ID, "format", format, "error", err)
		jsonError(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s.%s"`, snap.ID, format))
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
