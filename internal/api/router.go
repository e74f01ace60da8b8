package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint, outside the versioned API
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Pool endpoints
		r.Route("/pools", func(r chi.Router) {
			r.Get("/", s.handleListPools)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetPool)
				r.Get("/devices", s.handlePoolDevices)
				r.Get("/water-quality", s.handleWaterQuality)
				r.Get("/water-quality/history", s.handleWaterQualityHistory)
			})
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleDeviceHistory)
				r.Get("/commands", s.handleCommandHistory)
				r.Post("/commands/{command}", s.handleCommand)
				r.Get("/schedules", s.handleGetSchedules)
				r.Put("/schedules", s.handleSetSchedules)
				r.Delete("/schedules", s.handleClearSchedules)
			})
		})

		// System endpoints
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
			r.Post("/refresh", s.handleRefresh)
		})

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
