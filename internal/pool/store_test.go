package pool

import (
	"errors"
	"testing"

	"github.com/poolsync/poolsync-core/internal/codec"
)

// ─── Pool CRUD ────────────────────────────────────────────────────

func TestStorePoolRoundTrip(t *testing.T) {
	s := NewStore()
	s.UpsertPool(&Pool{ID: "pool-1", Name: "Backyard", Online: true})

	got, err := s.Pool("pool-1")
	if err != nil {
		t.Fatalf("Pool() error = %v", err)
	}
	if got.Name != "Backyard" || !got.Online {
		t.Errorf("Pool() = %+v", got)
	}

	_, err = s.Pool("missing")
	if !errors.Is(err, ErrPoolNotFound) {
		t.Errorf("Pool(missing) error = %v, want ErrPoolNotFound", err)
	}
}

func TestStoreDeviceLinksToPool(t *testing.T) {
	s := NewStore()
	s.UpsertPool(&Pool{ID: "pool-1"})
	s.UpsertDevice(&Device{ID: "dev-a", PoolID: "pool-1"})
	s.UpsertDevice(&Device{ID: "dev-b", PoolID: "pool-1"})
	s.UpsertDevice(&Device{ID: "dev-a", PoolID: "pool-1"}) // re-upsert must not duplicate the link

	devices, err := s.PoolDevices("pool-1")
	if err != nil {
		t.Fatalf("PoolDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("PoolDevices() returned %d devices, want 2", len(devices))
	}
	if devices[0].ID != "dev-a" || devices[1].ID != "dev-b" {
		t.Errorf("PoolDevices() order = %s, %s", devices[0].ID, devices[1].ID)
	}
}

// ─── Copy Isolation ───────────────────────────────────────────────

func TestStoreReadsAreIsolated(t *testing.T) {
	s := NewStore()
	s.UpsertDevice(&Device{
		ID:     "dev-a",
		Values: map[int]codec.Value{9: codec.BoolValue(true)},
	})

	got, err := s.Device("dev-a")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	got.Values[9] = codec.BoolValue(false)
	got.Name = "mutated"

	again, _ := s.Device("dev-a")
	if again.Name == "mutated" {
		t.Error("mutation of a returned copy leaked into the store")
	}
	if v := again.Value(9); !v.Bool {
		t.Error("mutation of a returned value map leaked into the store")
	}
}

func TestStoreUpdateDeviceAtomic(t *testing.T) {
	s := NewStore()
	s.UpsertDevice(&Device{ID: "dev-a", Connected: false})

	err := s.UpdateDevice("dev-a", func(d *Device) {
		d.Connected = true
		d.LastError = ""
	})
	if err != nil {
		t.Fatalf("UpdateDevice() error = %v", err)
	}

	got, _ := s.Device("dev-a")
	if !got.Connected {
		t.Error("UpdateDevice() mutation not applied")
	}

	err = s.UpdateDevice("missing", func(*Device) {})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateDevice(missing) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStoreRemoveDeviceUnlinks(t *testing.T) {
	s := NewStore()
	s.UpsertPool(&Pool{ID: "pool-1"})
	s.UpsertDevice(&Device{ID: "dev-a", PoolID: "pool-1"})
	s.UpsertDevice(&Device{ID: "dev-b", PoolID: "pool-1"})

	s.RemoveDevice("dev-a")

	if _, err := s.Device("dev-a"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Device(removed) error = %v, want ErrDeviceNotFound", err)
	}
	devices, _ := s.PoolDevices("pool-1")
	if len(devices) != 1 || devices[0].ID != "dev-b" {
		t.Errorf("PoolDevices() after remove = %d devices", len(devices))
	}
}

// ─── Value Access ─────────────────────────────────────────────────

func TestDeviceValueAbsentWhenUnread(t *testing.T) {
	d := &Device{ID: "dev-a"}
	if v := d.Value(9); v.Kind != codec.KindAbsent {
		t.Errorf("Value(unread) kind = %v, want absent", v.Kind)
	}
}
