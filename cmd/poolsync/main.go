// PoolSync Core - Pool Equipment Cloud Integration
//
// This is the main entry point for the PoolSync Core service. It
// polls the vendor cloud for pool and equipment state, reconciles it
// into a local store, and exposes it over HTTP, WebSocket, and MQTT:
//   - Local-first API over cloud-locked equipment
//   - Optimistic command state over a slow-converging cloud
//   - Circuit breaker and rate limiter protecting the vendor account
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/poolsync/poolsync-core/migrations"

	"github.com/poolsync/poolsync-core/internal/api"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/fluidra"
	"github.com/poolsync/poolsync-core/internal/history"
	"github.com/poolsync/poolsync-core/internal/infrastructure/config"
	"github.com/poolsync/poolsync-core/internal/infrastructure/database"
	"github.com/poolsync/poolsync-core/internal/infrastructure/influxdb"
	"github.com/poolsync/poolsync-core/internal/infrastructure/logging"
	"github.com/poolsync/poolsync-core/internal/infrastructure/metrics"
	"github.com/poolsync/poolsync-core/internal/infrastructure/mqtt"
	"github.com/poolsync/poolsync-core/internal/platform"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/profile"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// recordTimeout bounds one history write triggered by a poll cycle.
const recordTimeout = 10 * time.Second

// historyRetention is how long local history rows are kept before the
// daily prune removes them.
const historyRetention = 90 * 24 * time.Hour

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit // Linear startup wiring
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PoolSync Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	log.Info("cloud account configured",
		"base_url", cfg.Fluidra.BaseURL,
		"username", logging.Redact(cfg.Fluidra.Username),
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Cloud connection protections
	breaker := resilience.NewCircuitBreaker(
		cfg.Fluidra.Resilience.FailureThreshold,
		cfg.RecoveryTimeout(),
	)
	limiter := resilience.NewRateLimiter(
		cfg.Fluidra.Resilience.MaxRequests,
		cfg.LimiterWindow(),
	)

	// Vendor gateway with refreshing credentials
	exchanger := &passwordExchanger{
		baseURL:  cfg.Fluidra.BaseURL,
		username: cfg.Fluidra.Username,
		password: cfg.Fluidra.Password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	creds := fluidra.NewRefreshingProvider(exchanger)
	gateway := fluidra.NewGateway(creds, breaker, limiter,
		fluidra.WithBaseURL(cfg.Fluidra.BaseURL),
		fluidra.WithLogger(log),
	)

	// Reconciliation engine over the in-memory store
	store := pool.NewStore()
	eng := engine.New(gateway, profile.NewRegistry(), store, engine.Config{
		Interval:         cfg.PollInterval(),
		OptimisticWindow: cfg.OptimisticWindow(),
	})
	eng.SetLogger(log)

	// Local history and Prometheus metrics
	recorder := history.NewRecorder(db.DB)
	met := metrics.New()

	eng.AddListener(func(result engine.CycleResult) {
		recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if recordErr := recorder.RecordCycle(recordCtx, result, eng.Snapshot()); recordErr != nil {
			log.Error("history write failed", "cycle", result.ID, "error", recordErr)
		}

		met.ObserveCycle(result, nil)
		met.ObserveSnapshot(eng.Snapshot())
		met.ObserveBreaker(breaker.State())
	})
	eng.OnCommand(func(deviceID string, componentID int, value string, cmdErr error) {
		met.ObserveCommand(deviceID, componentID, value, cmdErr)

		recordCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if recordErr := recorder.RecordCommand(recordCtx, deviceID, componentID, value, cmdErr); recordErr != nil {
			log.Error("command log write failed", "device_id", deviceID, "error", recordErr)
		}
	})
	go pruneHistoryLoop(ctx, recorder, log)

	// Connect to MQTT broker and start the platform bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		bridge := platform.New(mqttClient, eng, platform.Config{QoS: byte(cfg.MQTT.QoS)})
		bridge.SetLogger(log)
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting platform bridge: %w", startErr)
		}
		eng.AddListener(bridge.OnCycle)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		eng.AddListener(telemetryListener(influxClient, eng))
	} else {
		log.Info("InfluxDB disabled")
	}

	// HTTP API server
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log,
		Engine:  eng,
		History: recorder,
		Metrics: met.Handler(),
		Breaker: breaker,
		Limiter: limiter,
		Version: version,

		CloudAccount: logging.Redact(cfg.Fluidra.Username),
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	eng.AddListener(server.OnCycle)
	log.Info("API server started", "address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port))

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, polling",
		"interval", cfg.PollInterval(),
		"optimistic_window", cfg.OptimisticWindow(),
	)

	// Poll until the shutdown signal arrives. Deferred Close() calls
	// run in reverse order: API, InfluxDB, MQTT, database.
	err = eng.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("poll loop: %w", err)
	}

	log.Info("PoolSync Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses POOLSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("POOLSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// pruneHistoryLoop removes history rows past the retention window once
// a day until the context is cancelled.
func pruneHistoryLoop(ctx context.Context, recorder *history.Recorder, log *logging.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruneCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := recorder.Prune(pruneCtx, historyRetention)
			cancel()
			if err != nil {
				log.Error("history prune failed", "error", err)
				continue
			}
			if removed > 0 {
				log.Info("history pruned", "rows", removed)
			}
		}
	}
}

// telemetryListener forwards each cycle's readings to InfluxDB: the
// cycle summary, per-pool chemistry, and per-device speed and
// connectivity.
func telemetryListener(client *influxdb.Client, eng *engine.Engine) func(engine.CycleResult) {
	return func(result engine.CycleResult) {
		client.WriteCycleMetric(result.ID, result.Duration.Milliseconds(),
			result.Devices, result.DevicesSkipped, result.DevicesFailed)

		for _, state := range eng.Snapshot() {
			if state.Pool != nil && state.Pool.WaterQuality != nil {
				q := state.Pool.WaterQuality
				client.WriteWaterQuality(state.Pool.ID, q.SampledAt,
					q.Temperature, q.PH, q.ORP, q.FreeChlorine)
			}
			for _, d := range state.Devices {
				connected := 0.0
				if d.Connected {
					connected = 1.0
				}
				client.WriteDeviceMetric(d.ID, "connected", connected)
				if d.EffectiveSpeed != nil {
					client.WriteDeviceMetric(d.ID, "speed_percent", *d.EffectiveSpeed)
				}
			}
		}
	}
}

// passwordExchanger trades the configured account credentials for an
// access token. The identity endpoint's response carries the bearer
// token the rest of the API expects; refresh scheduling lives in
// fluidra.RefreshingProvider, not here.
type passwordExchanger struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// Exchange implements fluidra.TokenExchanger.
func (e *passwordExchanger) Exchange(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": e.username,
		"password": e.password,
	})
	if err != nil {
		return "", fmt.Errorf("encoding credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request rejected: status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(payload, &token); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}
	return token.AccessToken, nil
}
