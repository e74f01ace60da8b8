package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/poolsync/poolsync-core/internal/pool"
)

// handleListPools returns every pool known to the store.
func (s *Server) handleListPools(w http.ResponseWriter, _ *http.Request) {
	pools := s.eng.Store().Pools()
	views := make([]map[string]any, 0, len(pools))
	for _, p := range pools {
		views = append(views, poolView(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": views, "count": len(views)})
}

// handleGetPool returns a single pool by ID.
func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.eng.Store().Pool(id)
	if err != nil {
		writeNotFound(w, "pool not found")
		return
	}

	writeJSON(w, http.StatusOK, poolView(p))
}

// handlePoolDevices returns the devices assigned to a pool, in
// discovery order.
func (s *Server) handlePoolDevices(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	devices, err := s.eng.Store().PoolDevices(id)
	if err != nil {
		if errors.Is(err, pool.ErrPoolNotFound) {
			writeNotFound(w, "pool not found")
			return
		}
		writeInternalError(w, "failed to list pool devices")
		return
	}

	views := make([]map[string]any, 0, len(devices))
	for _, d := range devices {
		views = append(views, deviceView(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleWaterQuality returns the pool's current chemistry assessment.
func (s *Server) handleWaterQuality(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := s.eng.Store().Pool(id)
	if err != nil {
		writeNotFound(w, "pool not found")
		return
	}
	if p.WaterQuality == nil {
		writeNotFound(w, "no water quality report for pool")
		return
	}

	writeJSON(w, http.StatusOK, qualityView(p.WaterQuality))
}

// handleWaterQualityHistory returns recorded chemistry samples for a
// pool, newest first.
//
// Query parameters:
//   - limit: maximum rows to return (default 50, max 200)
func (s *Server) handleWaterQualityHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeNotFound(w, "history recording is disabled")
		return
	}
	id := chi.URLParam(r, "id")

	if _, err := s.eng.Store().Pool(id); err != nil {
		writeNotFound(w, "pool not found")
		return
	}

	entries, err := s.hist.WaterQualityHistory(r.Context(), id, queryLimit(r))
	if err != nil {
		s.logger.Error("water quality history query failed", "pool_id", id, "error", err)
		writeInternalError(w, "failed to query water quality history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// queryLimit parses the limit query parameter; zero means the
// recorder's default.
func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
