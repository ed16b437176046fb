package server

import (
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleWebhookStats(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeErrorMsg(w, http.StatusNotFound, "webhook delivery is not configured")
		return
	}
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeErrorMsg(w, http.StatusBadRequest, "invalid window duration")
			return
		}
		window = d
	}
	stats, err := s.monitor.Stats(window)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := s.monitor.Health()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"window": window.String(),
		"health": health,
		"stats":  stats,
	})
}

func (s *Server) handleWebhookFailures(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeErrorMsg(w, http.StatusNotFound, "webhook delivery is not configured")
		return
	}
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n <= 500 {
		limit = n
	}
	failures, err := s.monitor.RecentFailures(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": failures})
}
