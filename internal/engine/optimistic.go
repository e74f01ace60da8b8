package engine

import (
	"sync"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
)

// DefaultOptimisticWindow is how long a written value shadows the
// cloud-reported one. Long enough for the cloud to echo the write,
// short enough that a lost command self-corrects within one cycle.
const DefaultOptimisticWindow = 8 * time.Second

// Key identifies one optimistic entry: a device crossed with the
// control component that was written.
type Key struct {
	DeviceID  string
	Component int
}

// optimisticEntry is one pending write shadow.
type optimisticEntry struct {
	value codec.Value
	setAt time.Time
}

// OptimisticState tracks recently written values so the poll cycle
// does not clobber them with stale cloud echoes.
//
// Safe for concurrent use.
type OptimisticState struct {
	mu      sync.Mutex
	entries map[Key]optimisticEntry
	window  time.Duration
	now     func() time.Time
}

// NewOptimisticState creates an empty tracker with the given shadow
// window; zero selects DefaultOptimisticWindow.
func NewOptimisticState(window time.Duration) *OptimisticState {
	if window <= 0 {
		window = DefaultOptimisticWindow
	}
	return &OptimisticState{
		entries: make(map[Key]optimisticEntry),
		window:  window,
		now:     time.Now,
	}
}

// Register records a written value. A later Register for the same key
// replaces the entry and restarts its window.
func (o *OptimisticState) Register(key Key, value codec.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries[key] = optimisticEntry{value: value, setAt: o.now()}
}

// Unregister drops an entry, on confirmation or command failure.
func (o *OptimisticState) Unregister(key Key) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.entries, key)
}

// Value returns the shadow value for a key while its window is open.
func (o *OptimisticState) Value(key Key) (codec.Value, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry, ok := o.entries[key]
	if !ok {
		return codec.Value{}, false
	}
	if o.expired(entry) {
		delete(o.entries, key)
		return codec.Value{}, false
	}
	return entry.value, true
}

// DeviceShadowed reports whether the device holds any unexpired entry.
// The engine skips shadowed devices for the whole cycle.
func (o *OptimisticState) DeviceShadowed(deviceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, entry := range o.entries {
		if key.DeviceID != deviceID {
			continue
		}
		if o.expired(entry) {
			delete(o.entries, key)
			continue
		}
		return true
	}
	return false
}

// Len returns the number of live entries, pruning expired ones.
func (o *OptimisticState) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	for key, entry := range o.entries {
		if o.expired(entry) {
			delete(o.entries, key)
		}
	}
	return len(o.entries)
}

func (o *OptimisticState) expired(entry optimisticEntry) bool {
	return o.now().Sub(entry.setAt) >= o.window
}
