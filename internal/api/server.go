package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/history"
	"github.com/poolsync/poolsync-core/internal/infrastructure/config"
	"github.com/poolsync/poolsync-core/internal/infrastructure/logging"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger
	Engine *engine.Engine

	// History serves the /history endpoints; nil disables them.
	History *history.Recorder

	// Metrics is the Prometheus scrape handler; nil disables /metrics.
	Metrics http.Handler

	// Breaker and Limiter feed the system status endpoint; nil omits
	// the corresponding fields.
	Breaker *resilience.CircuitBreaker
	Limiter *resilience.RateLimiter

	Version string

	// CloudAccount is the vendor account identifier, already masked by
	// the caller, shown on the system status endpoint for diagnostics.
	CloudAccount string
}

// Server is the HTTP API server for PoolSync Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	eng     *engine.Engine
	hist    *history.Recorder
	metrics http.Handler
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
	version string
	account string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()

	// lastCycle is the most recent poll cycle summary, updated by
	// OnCycle and served from the system status endpoint.
	cycleMu   sync.RWMutex
	lastCycle *engine.CycleResult
	startedAt time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, engine)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		eng:     deps.Engine,
		hist:    deps.History,
		metrics: deps.Metrics,
		breaker: deps.Breaker,
		limiter: deps.Limiter,
		version: deps.Version,
		account: deps.CloudAccount,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.startedAt = time.Now()

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Build router
	router := s.buildRouter()

	// Create HTTP server
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	// Start listening in background
	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// OnCycle records the cycle summary and broadcasts the refreshed state
// to WebSocket subscribers. Register it with engine.AddListener.
func (s *Server) OnCycle(result engine.CycleResult) {
	s.cycleMu.Lock()
	s.lastCycle = &result
	s.cycleMu.Unlock()

	hub := s.hub
	if hub == nil {
		return
	}

	hub.Broadcast(ChannelCycle, cycleView(result))

	for _, state := range s.eng.Snapshot() {
		hub.Broadcast(ChannelPoolState, poolView(state.Pool))
		for _, d := range state.Devices {
			hub.Broadcast(ChannelDeviceState, deviceView(d))
		}
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
