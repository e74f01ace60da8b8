package fluidra

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// staticCreds hands out fixed tokens and records invalidations.
type staticCreds struct {
	token       string
	invalidated int
}

func (s *staticCreds) Token(context.Context) (string, error) { return s.token, nil }
func (s *staticCreds) Invalidate()                           { s.invalidated++ }

func newTestGateway(t *testing.T, handler http.Handler) (*Gateway, *staticCreds) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := &staticCreds{token: "tok-1"}
	g := NewGateway(creds,
		resilience.NewCircuitBreaker(5, 300*time.Second),
		resilience.NewRateLimiter(30, time.Minute),
		WithBaseURL(srv.URL),
	)
	return g, creds
}

// ─── Discovery ────────────────────────────────────────────────────

func TestDevicesSplitsBridges(t *testing.T) {
	tree := []map[string]any{
		{
			"deviceId":     "E30500883",
			"name":         "Pool Pump",
			"family":       "E30iQ",
			"serialNumber": "E30500883",
		},
		{
			"deviceId": "BR0001",
			"family":   "Connect Bridge",
			"children": []map[string]any{
				{
					"deviceId": "BR0001.nn_5",
					"name":     "Chlorinator",
					"family":   "Chlorinator",
					"components": []map[string]any{
						{"componentId": 7, "reportedValue": "EXO-IQ", "ts": 1000},
					},
				},
				{"name": "Unnamed Child", "family": "Heater"},
			},
		},
	}

	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generic/devices" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("format"); got != "tree" {
			t.Errorf("format = %s, want tree", got)
		}
		if got := r.URL.Query().Get("poolId"); got != "pool-1" {
			t.Errorf("poolId = %s", got)
		}
		json.NewEncoder(w).Encode(tree)
	}))

	devices, err := g.Devices(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("Devices() returned %d devices, want 3 (bridge dropped, children kept)", len(devices))
	}

	for _, d := range devices {
		if d.ID == "BR0001" {
			t.Error("bridge node surfaced as a device")
		}
	}

	chlor := devices[1]
	if chlor.ID != "BR0001.nn_5" || chlor.ParentID != "BR0001" {
		t.Errorf("bridged child = id %q parent %q", chlor.ID, chlor.ParentID)
	}
	if rec, ok := chlor.Components[7]; !ok || rec.Reported != "EXO-IQ" {
		t.Errorf("bridged child components = %+v", chlor.Components)
	}

	synthetic := devices[2]
	if synthetic.ID != "BR0001.nn_1" || synthetic.ParentID != "BR0001" {
		t.Errorf("synthetic child id = %q parent %q", synthetic.ID, synthetic.ParentID)
	}
}

// ─── Component Read/Write ─────────────────────────────────────────

func TestReadComponentAbsentOn404(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, ok, err := g.ReadComponent(context.Background(), "dev-a", 42)
	if err != nil {
		t.Fatalf("ReadComponent() error = %v, want nil for 404", err)
	}
	if ok {
		t.Error("ReadComponent() ok = true for a missing component")
	}
}

func TestReadComponentPopulatesCache(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("deviceType"); got != "connected" {
			t.Errorf("deviceType = %s, want connected", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"componentId": 9, "reportedValue": true, "ts": 1234,
		})
	}))

	rec, ok, err := g.ReadComponent(context.Background(), "dev-a", 9)
	if err != nil || !ok {
		t.Fatalf("ReadComponent() = (%v, %v, %v)", rec, ok, err)
	}
	if rec.Reported != true || rec.Timestamp != 1234 {
		t.Errorf("ReadComponent() record = %+v", rec)
	}

	cached := g.CachedComponents("dev-a")
	if got, ok := cached[9]; !ok || got.Reported != true {
		t.Errorf("CachedComponents() = %+v", cached)
	}
}

func TestWriteComponentEnvelopeAndCache(t *testing.T) {
	var received map[string]any
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/generic/devices/dev-a/components/9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))

	if err := g.WriteComponent(context.Background(), "dev-a", 9, 1); err != nil {
		t.Fatalf("WriteComponent() error = %v", err)
	}
	if v, ok := received["desiredValue"]; !ok || v != float64(1) {
		t.Errorf("request body = %+v", received)
	}

	cached := g.CachedComponents("dev-a")
	if rec, ok := cached[9]; !ok || rec.Desired != 1 {
		t.Errorf("cache after write = %+v", cached)
	}
}

func TestWriteSchedulesRequiresFullSlotSet(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the server for a short slot set")
	}))

	err := g.WriteSchedules(context.Background(), "dev-a", 20, make([]codec.ScheduleSlot, 3))
	if err == nil {
		t.Fatal("WriteSchedules(3 slots) = nil error")
	}
}

// ─── Auth Retry ───────────────────────────────────────────────────

func TestAuthRetryOnceThenSucceed(t *testing.T) {
	var requests int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode([]PoolSummary{{ID: "pool-1", Name: "Backyard"}})
	})

	g, creds := newTestGateway(t, handler)
	creds.token = "tok-1"

	// Invalidate swaps in the good token, simulating a refresh.
	swap := &swapCreds{inner: creds, next: "tok-2"}
	g.creds = swap

	pools, err := g.ListPools(context.Background())
	if err != nil {
		t.Fatalf("ListPools() error = %v", err)
	}
	if len(pools) != 1 || pools[0].ID != "pool-1" {
		t.Errorf("ListPools() = %+v", pools)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (reject, then retry)", requests)
	}
	if swap.invalidated != 1 {
		t.Errorf("invalidations = %d, want 1", swap.invalidated)
	}
}

type swapCreds struct {
	inner       *staticCreds
	next        string
	invalidated int
}

func (s *swapCreds) Token(ctx context.Context) (string, error) { return s.inner.Token(ctx) }
func (s *swapCreds) Invalidate() {
	s.invalidated++
	s.inner.token = s.next
}

func TestAuthFailureAfterRetryIsErrAuth(t *testing.T) {
	g, creds := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := g.ListPools(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("ListPools() error = %v, want ErrAuth", err)
	}
	if creds.invalidated != 1 {
		t.Errorf("invalidations = %d, want exactly 1 (retry once)", creds.invalidated)
	}
}

// ─── Resilience Integration ───────────────────────────────────────

func TestOpenBreakerFailsFast(t *testing.T) {
	var requests int
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	// Five consecutive failures open the breaker.
	for i := 0; i < 5; i++ {
		if _, err := g.ListPools(context.Background()); !errors.Is(err, ErrConnection) {
			t.Fatalf("ListPools() error = %v, want ErrConnection", err)
		}
	}
	sent := requests

	_, err := g.ListPools(context.Background())
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("ListPools() with open breaker error = %v, want ErrCircuitOpen", err)
	}
	if requests != sent {
		t.Error("open breaker still sent a request")
	}
}

func TestRateLimiterRejectsWithoutNetwork(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		json.NewEncoder(w).Encode([]PoolSummary{})
	}))
	t.Cleanup(srv.Close)

	g := NewGateway(&staticCreds{token: "tok"},
		resilience.NewCircuitBreaker(5, 300*time.Second),
		resilience.NewRateLimiter(2, time.Minute),
		WithBaseURL(srv.URL),
	)

	for i := 0; i < 2; i++ {
		if _, err := g.ListPools(context.Background()); err != nil {
			t.Fatalf("ListPools() error = %v", err)
		}
	}

	_, err := g.ListPools(context.Background())
	if !errors.Is(err, resilience.ErrRateLimited) {
		t.Fatalf("ListPools() error = %v, want ErrRateLimited", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

// ─── Water Quality ────────────────────────────────────────────────

func TestWaterQualityNewestJob(t *testing.T) {
	ph := 7.2
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{
				{"output": map[string]any{"ph": ph, "status": "good"}},
				{"output": map[string]any{"ph": 6.9, "status": "fair"}},
			},
		})
	}))

	report, err := g.WaterQuality(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("WaterQuality() error = %v", err)
	}
	if report == nil || report.PH == nil || *report.PH != ph || report.Status != "good" {
		t.Errorf("WaterQuality() = %+v", report)
	}
}

func TestWaterQualityAbsentEndpoint(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	report, err := g.WaterQuality(context.Background(), "pool-1")
	if err != nil || report != nil {
		t.Errorf("WaterQuality() = (%+v, %v), want (nil, nil)", report, err)
	}
}
