package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/fluidra"
)

// handleSystemStatus reports the service's runtime state: version,
// uptime, the last poll cycle, and the health of the cloud connection
// protections.
func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	store := s.eng.Store()

	status := map[string]any{
		"status":             "ok",
		"version":            s.version,
		"started_at":         s.startedAt.UTC().Format(time.RFC3339),
		"uptime_seconds":     int64(time.Since(s.startedAt).Seconds()),
		"pools":              len(store.Pools()),
		"devices":            len(store.Devices()),
		"commands_in_flight": s.eng.HasOptimistic(),
	}

	if s.account != "" {
		status["cloud_account"] = s.account
	}
	if s.breaker != nil {
		status["circuit_breaker"] = s.breaker.State().String()
	}
	if s.limiter != nil {
		status["rate_limit_wait_ms"] = s.limiter.WaitTime().Milliseconds()
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}

	s.cycleMu.RLock()
	if s.lastCycle != nil {
		status["last_cycle"] = cycleView(*s.lastCycle)
	}
	s.cycleMu.RUnlock()

	writeJSON(w, http.StatusOK, status)
}

// handleRefresh triggers an immediate poll cycle instead of waiting
// for the next periodic one. The cycle runs synchronously so the
// response reflects its outcome.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.eng.RunCycle(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": "refreshed"})
	case errors.Is(err, engine.ErrCycleRunning):
		writeConflict(w, ErrCodeConflict, "a poll cycle is already running")
	case errors.Is(err, fluidra.ErrAuth):
		s.logger.Error("manual refresh rejected by cloud", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "cloud credential rejected")
	default:
		s.logger.Error("manual refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeInternal, "cloud refresh failed")
	}
}
