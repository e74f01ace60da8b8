package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/fluidra"
	"github.com/poolsync/poolsync-core/internal/history"
	"github.com/poolsync/poolsync-core/internal/infrastructure/config"
	"github.com/poolsync/poolsync-core/internal/infrastructure/logging"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/profile"
)

// ─── Fixtures ──────────────────────────────────────────────────────

// fakeGateway records writes and serves an empty account, enough for
// command dispatch and manual refresh.
type fakeGateway struct {
	writes   []fakeWrite
	writeErr error
	listErr  error
}

type fakeWrite struct {
	deviceID    string
	componentID int
	value       any
}

func (f *fakeGateway) ListPools(context.Context) ([]fluidra.PoolSummary, error) {
	return nil, f.listErr
}

func (f *fakeGateway) PoolDetails(context.Context, string) (*fluidra.PoolDetails, error) {
	return nil, fluidra.ErrNotFound
}

func (f *fakeGateway) PoolStatus(context.Context, string) (*fluidra.PoolStatus, error) {
	return nil, fluidra.ErrNotFound
}

func (f *fakeGateway) WaterQuality(context.Context, string) (*fluidra.WaterQualityReport, error) {
	return nil, nil
}

func (f *fakeGateway) Devices(context.Context, string) ([]fluidra.DeviceInfo, error) {
	return nil, nil
}

func (f *fakeGateway) ReadComponent(context.Context, string, int) (codec.Record, bool, error) {
	return codec.Record{}, false, nil
}

func (f *fakeGateway) WriteComponent(_ context.Context, deviceID string, componentID int, value any) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, fakeWrite{deviceID, componentID, value})
	return nil
}

func (f *fakeGateway) WriteSchedules(_ context.Context, deviceID string, componentID int, slots []codec.ScheduleSlot) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, fakeWrite{deviceID, componentID, slots})
	return nil
}

// pumpProfile declares the features the command tests exercise.
func pumpProfile() *profile.Profile {
	return &profile.Profile{
		Name:       "e30iq_pump",
		DeviceType: profile.TypePump,
		Codec:      codec.FamilyPump,
		Features: map[string]profile.FeatureSpec{
			profile.FeaturePower:        {Component: 9},
			profile.FeatureAutoMode:     {Component: 10},
			profile.FeatureSpeedControl: {Component: 11},
			profile.FeatureSchedules:    {Component: 20},
		},
	}
}

// seedStore populates a store with one pool holding an online pump
// and an offline pump.
func seedStore(store *pool.Store) {
	temp := 27.5
	ph := 7.2
	speed := 65.0

	store.UpsertPool(&pool.Pool{
		ID:     "pool-1",
		Name:   "Garden",
		Online: true,
		WaterQuality: &pool.WaterQuality{
			Temperature: &temp,
			PH:          &ph,
			Status:      "good",
			SampledAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		},
		DeviceIDs: []string{"E30500883", "E30500884"},
	})
	store.UpsertDevice(&pool.Device{
		ID:             "E30500883",
		PoolID:         "pool-1",
		Name:           "Filtration pump",
		ProfileName:    "e30iq_pump",
		Profile:        pumpProfile(),
		Connected:      true,
		EffectiveSpeed: &speed,
		Values: map[int]codec.Value{
			9:  codec.BoolValue(true),
			10: codec.BoolValue(false),
			11: codec.NumberValue(65),
			20: codec.SchedulesValue([]codec.Schedule{
				{ID: 1, GroupID: 7, Enabled: true, StartTime: "0 8 * * *", EndTime: "0 12 * * *", Operation: 1},
			}),
		},
	})
	store.UpsertDevice(&pool.Device{
		ID:          "E30500884",
		PoolID:      "pool-1",
		Name:        "Backup pump",
		ProfileName: "e30iq_pump",
		Profile:     pumpProfile(),
		Connected:   false,
	})
}

// newTestServer builds a server over a seeded store and fake gateway.
// The history recorder is nil unless a database is supplied.
func newTestServer(t *testing.T, gw *fakeGateway, db *sql.DB) *Server {
	t.Helper()

	store := pool.NewStore()
	seedStore(store)
	eng := engine.New(gw, profile.NewRegistry(), store, engine.Config{})

	var rec *history.Recorder
	if db != nil {
		rec = history.NewRecorder(db)
	}

	s, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:      config.WebSocketConfig{MaxMessageSize: 65536, PingInterval: 30, PongTimeout: 10},
		Logger:  logging.Default(),
		Engine:  eng,
		History: rec,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.startedAt = time.Now()
	return s
}

// setupHistoryDB creates an in-memory SQLite database with the history
// tables.
func setupHistoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE device_state_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			pool_id TEXT NOT NULL,
			profile TEXT,
			connected INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE water_quality_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pool_id TEXT NOT NULL,
			temperature REAL,
			ph REAL,
			orp REAL,
			free_chlorine REAL,
			status TEXT,
			recorded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE command_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			component_id INTEGER NOT NULL,
			value TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			error TEXT,
			issued_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// doRequest runs one request through the full middleware and router
// stack.
func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rr, req)
	return rr
}

// decodeBody unmarshals a JSON response body.
func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rr.Body.String())
	}
	return out
}

// ─── Health and system ─────────────────────────────────────────────

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	s.OnCycle(engine.CycleResult{ID: "cycle-1", StartedAt: time.Now(), Duration: 750 * time.Millisecond})

	rr := doRequest(t, s, http.MethodGet, "/api/v1/system/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["pools"] != float64(1) {
		t.Errorf("pools = %v, want 1", body["pools"])
	}
	if body["devices"] != float64(2) {
		t.Errorf("devices = %v, want 2", body["devices"])
	}
	cycle, ok := body["last_cycle"].(map[string]any)
	if !ok {
		t.Fatalf("last_cycle missing: %v", body)
	}
	if cycle["cycle_id"] != "cycle-1" {
		t.Errorf("cycle_id = %v, want cycle-1", cycle["cycle_id"])
	}
}

func TestSystemRefresh(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/system/refresh", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
}

func TestSystemRefreshAuthFailure(t *testing.T) {
	s := newTestServer(t, &fakeGateway{listErr: fluidra.ErrAuth}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/system/refresh", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

// ─── Pools ─────────────────────────────────────────────────────────

func TestListPools(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/pools", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestGetPool(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/pools/pool-1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["name"] != "Garden" {
		t.Errorf("name = %v, want Garden", body["name"])
	}
	quality, ok := body["water_quality"].(map[string]any)
	if !ok {
		t.Fatalf("water_quality missing: %v", body)
	}
	if quality["ph"] != 7.2 {
		t.Errorf("ph = %v, want 7.2", quality["ph"])
	}
}

func TestGetPoolNotFound(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/pools/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestPoolDevices(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/pools/pool-1/devices", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestWaterQuality(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/pools/pool-1/water-quality", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["temperature_c"] != 27.5 {
		t.Errorf("temperature_c = %v, want 27.5", body["temperature_c"])
	}
	if body["status"] != "good" {
		t.Errorf("status = %v, want good", body["status"])
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestListDevicesConnectedFilter(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices?connected=true", "")
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	rr = doRequest(t, s, http.MethodGet, "/api/v1/devices?connected=false", "")
	body = decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestGetDevice(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/E30500883", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["profile"] != "e30iq_pump" {
		t.Errorf("profile = %v, want e30iq_pump", body["profile"])
	}
	if body["effective_speed"] != 65.0 {
		t.Errorf("effective_speed = %v, want 65", body["effective_speed"])
	}
	features, ok := body["features"].(map[string]any)
	if !ok {
		t.Fatalf("features missing: %v", body)
	}
	if features["power"] != true {
		t.Errorf("features.power = %v, want true", features["power"])
	}
	if features["speed_control"] != 65.0 {
		t.Errorf("features.speed_control = %v, want 65", features["speed_control"])
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

// ─── Commands ──────────────────────────────────────────────────────

func TestCommandPower(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500883/commands/power", "true")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rr.Code, rr.Body.String())
	}

	if len(gw.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(gw.writes))
	}
	if gw.writes[0].deviceID != "E30500883" || gw.writes[0].componentID != 9 {
		t.Errorf("write = %+v, want E30500883/9", gw.writes[0])
	}
}

func TestCommandSpeed(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500883/commands/speed", "65")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rr.Code, rr.Body.String())
	}
	if len(gw.writes) != 1 || gw.writes[0].componentID != 11 {
		t.Fatalf("writes = %+v, want one write to component 11", gw.writes)
	}
}

func TestCommandBadValue(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500883/commands/power", `"sideways"`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCommandUnknown(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500883/commands/teleport", "true")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCommandDeviceOffline(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500884/commands/power", "true")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["code"] != ErrCodeUnavailable {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeUnavailable)
	}
}

func TestCommandUnsupported(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	// The pump profile declares no temperature feature.
	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/E30500883/commands/target_temperature", "28")
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["code"] != ErrCodeUnsupported {
		t.Errorf("code = %v, want %s", body["code"], ErrCodeUnsupported)
	}
}

func TestCommandDeviceNotFound(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodPost, "/api/v1/devices/nope/commands/power", "true")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

// ─── Schedules ─────────────────────────────────────────────────────

func TestGetSchedules(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/E30500883/schedules", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", body["count"])
	}
	schedules := body["schedules"].([]any)
	first := schedules[0].(map[string]any)
	if first["start_time"] != "0 8 * * *" {
		t.Errorf("start_time = %v, want 0 8 * * *", first["start_time"])
	}
	if first["operation"] != float64(1) {
		t.Errorf("operation = %v, want 1", first["operation"])
	}
}

func TestSetSchedules(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	body := `[{"id":1,"group_id":7,"enabled":true,"start_time":"0 6 * * *","end_time":"0 9 * * *","operation":2}]`
	rr := doRequest(t, s, http.MethodPut, "/api/v1/devices/E30500883/schedules", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rr.Code, rr.Body.String())
	}
	if len(gw.writes) != 1 || gw.writes[0].componentID != 20 {
		t.Fatalf("writes = %+v, want one write to component 20", gw.writes)
	}
}

func TestGetSchedulesRewritesDaysToLocal(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	store := s.eng.Store()
	dev, err := store.Device("E30500883")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	dev.Values[20] = codec.SchedulesValue([]codec.Schedule{
		{ID: 1, GroupID: 7, Enabled: true, StartTime: "0 8 * * 1,7", EndTime: "0 12 * * 1,7", Operation: 1},
	})
	store.UpsertDevice(dev)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/E30500883/schedules", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	first := body["schedules"].([]any)[0].(map[string]any)
	if first["start_time"] != "0 8 * * 0,1" {
		t.Errorf("start_time = %v, want 0 8 * * 0,1", first["start_time"])
	}
	if first["end_time"] != "0 12 * * 0,1" {
		t.Errorf("end_time = %v, want 0 12 * * 0,1", first["end_time"])
	}
}

func TestSetSchedulesRewritesDaysToRemote(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	body := `[{"id":1,"group_id":7,"enabled":true,"start_time":"0 6 * * 0,6","end_time":"0 9 * * 0,6","operation":2}]`
	rr := doRequest(t, s, http.MethodPut, "/api/v1/devices/E30500883/schedules", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rr.Code, rr.Body.String())
	}
	if len(gw.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(gw.writes))
	}
	slots, ok := gw.writes[0].value.([]codec.ScheduleSlot)
	if !ok || len(slots) == 0 {
		t.Fatalf("schedule write carried %T, want slots", gw.writes[0].value)
	}
	if slots[0].StartTime != "0 6 * * 6,7" {
		t.Errorf("slot start = %q, want 0 6 * * 6,7", slots[0].StartTime)
	}
	if slots[0].EndTime != "0 9 * * 6,7" {
		t.Errorf("slot end = %q, want 0 9 * * 6,7", slots[0].EndTime)
	}
}

func TestSetSchedulesOverlapRejected(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	body := `[
		{"id":1,"group_id":7,"enabled":true,"start_time":"0 6 * * *","end_time":"0 10 * * *","operation":1},
		{"id":2,"group_id":7,"enabled":true,"start_time":"0 9 * * *","end_time":"0 12 * * *","operation":1}
	]`
	rr := doRequest(t, s, http.MethodPut, "/api/v1/devices/E30500883/schedules", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409; body: %s", rr.Code, rr.Body.String())
	}
	if len(gw.writes) != 0 {
		t.Errorf("writes = %d, want 0 after rejected overlap", len(gw.writes))
	}
}

func TestClearSchedules(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestServer(t, gw, nil)

	rr := doRequest(t, s, http.MethodDelete, "/api/v1/devices/E30500883/schedules", "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body: %s", rr.Code, rr.Body.String())
	}
	if len(gw.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(gw.writes))
	}
}

// ─── History ───────────────────────────────────────────────────────

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	paths := []string{
		"/api/v1/devices/E30500883/history",
		"/api/v1/devices/E30500883/commands",
		"/api/v1/pools/pool-1/water-quality/history",
	}
	for _, path := range paths {
		rr := doRequest(t, s, http.MethodGet, path, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rr.Code)
		}
	}
}

func TestCommandHistoryEndpoint(t *testing.T) {
	db := setupHistoryDB(t)
	s := newTestServer(t, &fakeGateway{}, db)

	if err := s.hist.RecordCommand(context.Background(), "E30500883", 9, "bool(true)", nil); err != nil {
		t.Fatalf("RecordCommand() error = %v", err)
	}

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/E30500883/commands", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestDeviceHistoryEndpoint(t *testing.T) {
	db := setupHistoryDB(t)
	s := newTestServer(t, &fakeGateway{}, db)

	snapshot := s.eng.Snapshot()
	if err := s.hist.RecordCycle(context.Background(), engine.CycleResult{ID: "cycle-1"}, snapshot); err != nil {
		t.Fatalf("RecordCycle() error = %v", err)
	}

	rr := doRequest(t, s, http.MethodGet, "/api/v1/devices/E30500883/history", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}

	rr = doRequest(t, s, http.MethodGet, "/api/v1/pools/pool-1/water-quality/history", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rr.Code, rr.Body.String())
	}
	body = decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("quality count = %v, want 1", body["count"])
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	rr := doRequest(t, s, http.MethodGet, "/api/v1/health", "")
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rr := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Errorf("X-Request-ID = %q, want fixed-id", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

// ─── WebSocket hub ─────────────────────────────────────────────────

func TestHubBroadcastRespectsSubscriptions(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelCycle: {}},
	}
	unsubscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{},
	}
	hub.Register(subscribed)
	hub.Register(unsubscribed)

	hub.Broadcast(ChannelCycle, map[string]any{"cycle_id": "cycle-1"})

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast is not valid JSON: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelCycle {
			t.Errorf("message = %+v, want event on %s", msg, ChannelCycle)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-unsubscribed.send:
		t.Fatal("unsubscribed client received a broadcast")
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, logging.Default())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{},
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("send channel still open after unregister")
	}

	// A second unregister must not panic on a double close.
	hub.Unregister(client)
}

// ─── Cycle broadcast ───────────────────────────────────────────────

func TestOnCycleBroadcasts(t *testing.T) {
	s := newTestServer(t, &fakeGateway{}, nil)
	s.hub = NewHub(config.WebSocketConfig{}, logging.Default())

	client := &WSClient{
		hub:  s.hub,
		send: make(chan []byte, 16),
		subscriptions: map[string]struct{}{
			ChannelCycle:       {},
			ChannelDeviceState: {},
		},
	}
	s.hub.Register(client)

	s.OnCycle(engine.CycleResult{ID: "cycle-1", Pools: 1, Devices: 2})

	// One cycle event plus one per device.
	if got := len(client.send); got != 3 {
		t.Fatalf("messages = %d, want 3", got)
	}
}
