// Package api implements the HTTP REST API and WebSocket server for
// PoolSync Core.
//
// This package provides:
//   - REST endpoints for pools, devices, commands, and history queries
//   - WebSocket hub for real-time poll cycle broadcasts
//   - Prometheus metrics endpoint
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between local clients (dashboards, automations,
// scripts) and the reconciliation engine. Reads are served from the
// engine's in-memory snapshot; commands dispatch through the engine to
// the vendor cloud; history queries hit the local SQLite recorder.
// After every poll cycle the server broadcasts the refreshed state to
// subscribed WebSocket clients.
//
// # Graceful Degradation
//
// The history recorder, metrics handler, and circuit breaker are all
// optional dependencies. Without them the corresponding endpoints
// return 404 or omit fields; reads and commands keep working.
//
// The server follows the same lifecycle pattern as other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api
