package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/engine"
	"github.com/poolsync/poolsync-core/internal/pool"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// scrape renders the registry through the HTTP handler.
func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("reading metrics body: %v", err)
	}
	return string(body)
}

func TestObserveCycle(t *testing.T) {
	m := New()

	m.ObserveCycle(engine.CycleResult{
		StartedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Duration:  500 * time.Millisecond,
		Devices:   4,
	}, nil)
	m.ObserveCycle(engine.CycleResult{DevicesFailed: 1}, errors.New("listing pools"))

	body := scrape(t, m)
	for _, want := range []string{
		`poolsync_cycles_total{status="ok"} 1`,
		`poolsync_cycles_total{status="error"} 1`,
		`poolsync_devices_failed 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
}

func TestObserveCommand(t *testing.T) {
	m := New()

	m.ObserveCommand("E30500883", 9, "bool(true)", nil)
	m.ObserveCommand("E30500883", 9, "bool(true)", nil)
	m.ObserveCommand("E30500883", 10, "number(3)", errors.New("rejected"))

	body := scrape(t, m)
	if !strings.Contains(body, `poolsync_commands_total{outcome="ok"} 2`) {
		t.Error("scrape missing ok command count")
	}
	if !strings.Contains(body, `poolsync_commands_total{outcome="error"} 1`) {
		t.Error("scrape missing error command count")
	}
}

func TestObserveBreaker(t *testing.T) {
	m := New()

	m.ObserveBreaker(resilience.StateOpen)

	if !strings.Contains(scrape(t, m), "poolsync_circuit_breaker_state 1") {
		t.Error("scrape missing open breaker state")
	}
}

func TestObserveSnapshot(t *testing.T) {
	m := New()

	speed := 65.0
	temp := 27.5
	ph := 7.2
	snapshot := map[string]*engine.PoolState{
		"pool-1": {
			Pool: &pool.Pool{
				ID: "pool-1",
				WaterQuality: &pool.WaterQuality{
					Temperature: &temp,
					PH:          &ph,
				},
			},
			Devices: []*pool.Device{
				{
					ID:             "E30500883",
					ProfileName:    "e30iq_pump",
					Connected:      true,
					EffectiveSpeed: &speed,
					Values:         map[int]codec.Value{9: codec.BoolValue(true)},
				},
				{ID: "LG2024001", ProfileName: "lg_heat_pump", Connected: false},
			},
		},
	}

	m.ObserveSnapshot(snapshot)

	body := scrape(t, m)
	for _, want := range []string{
		`poolsync_device_connected{device_id="E30500883",profile="e30iq_pump"} 1`,
		`poolsync_device_connected{device_id="LG2024001",profile="lg_heat_pump"} 0`,
		`poolsync_pump_effective_speed_percent{device_id="E30500883"} 65`,
		`poolsync_water_temperature_celsius{pool_id="pool-1"} 27.5`,
		`poolsync_water_ph{pool_id="pool-1"} 7.2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, "poolsync_water_orp_millivolts{") {
		t.Error("ORP gauge set despite absent reading")
	}
}
