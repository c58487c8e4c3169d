package api

import (
	"net/http"

	"github.com/dgallion1/threadgest/internal/analyze"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.llm == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	stats := analyze.StatsOf(s.llm)
	if stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider": s.llm.Provider(),
		"model":    s.llm.Model(),
		"stats":    stats.Snapshot(),
	})
}
