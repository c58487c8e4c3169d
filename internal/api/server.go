package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/threadgest/internal/analyze"
	"github.com/dgallion1/threadgest/internal/config"
	"github.com/dgallion1/threadgest/internal/parser"
	"github.com/dgallion1/threadgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP API server for threadgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	llm          analyze.Client
	profiles     parser.Profiles
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. llm may be nil when no
// provider key is configured.
func NewServer(orch *pipeline.Orchestrator, llm analyze.Client, profiles parser.Profiles, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		llm:          llm,
		profiles:     profiles,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/runs", s.handleCreateRun)
		r.Get("/api/runs/{runID}", s.handleRunStatus)
		r.Get("/api/runs/{runID}/posts", s.handleRunPosts)
		r.Get("/api/runs/{runID}/export", s.handleRunExport)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"analysis":    s.orchestrator.AnalysisEnabled(),
	})
}
