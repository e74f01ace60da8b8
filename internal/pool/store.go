package pool

import (
	"sort"
	"sync"
	"time"
)

// Store is the in-memory state index shared between the polling engine
// (writer) and the read surfaces (API, platform bridge, history).
//
// All public methods are thread-safe. Reads return deep copies; the
// engine replaces state wholesale under the write lock so readers
// never observe a half-reconciled device.
type Store struct {
	mu      sync.RWMutex
	pools   map[string]*Pool
	devices map[string]*Device
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		pools:   make(map[string]*Pool),
		devices: make(map[string]*Device),
		now:     time.Now,
	}
}

// UpsertPool inserts or replaces a pool record.
func (s *Store) UpsertPool(p *Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpy := p.DeepCopy()
	cpy.UpdatedAt = s.now()
	s.pools[cpy.ID] = cpy
}

// UpsertDevice inserts or replaces a device record and links it to its
// pool's device list.
func (s *Store) UpsertDevice(d *Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cpy := d.DeepCopy()
	cpy.UpdatedAt = s.now()
	s.devices[cpy.ID] = cpy

	if p, ok := s.pools[cpy.PoolID]; ok && !contains(p.DeviceIDs, cpy.ID) {
		p.DeviceIDs = append(p.DeviceIDs, cpy.ID)
	}
}

// Pool returns a pool by ID. Returns ErrPoolNotFound when absent.
func (s *Store) Pool(id string) (*Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p.DeepCopy(), nil
}

// Pools returns all pools sorted by ID.
func (s *Store) Pools() []*Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns a device by ID. Returns ErrDeviceNotFound when absent.
func (s *Store) Device(id string) (*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// Devices returns all devices sorted by ID.
func (s *Store) Devices() []*Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PoolDevices returns the devices linked to a pool, in discovery order.
func (s *Store) PoolDevices(poolID string) ([]*Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[poolID]
	if !ok {
		return nil, ErrPoolNotFound
	}
	out := make([]*Device, 0, len(p.DeviceIDs))
	for _, id := range p.DeviceIDs {
		if d, ok := s.devices[id]; ok {
			out = append(out, d.DeepCopy())
		}
	}
	return out, nil
}

// UpdateDevice applies a mutation to a device under the write lock.
// The mutation sees a private copy; the result replaces the stored
// record atomically. Returns ErrDeviceNotFound when absent.
func (s *Store) UpdateDevice(id string, fn func(*Device)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	cpy := d.DeepCopy()
	fn(cpy)
	cpy.UpdatedAt = s.now()
	s.devices[id] = cpy
	return nil
}

// UpdatePool applies a mutation to a pool under the write lock, same
// contract as UpdateDevice.
func (s *Store) UpdatePool(id string, fn func(*Pool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[id]
	if !ok {
		return ErrPoolNotFound
	}
	cpy := p.DeepCopy()
	fn(cpy)
	cpy.UpdatedAt = s.now()
	s.pools[id] = cpy
	return nil
}

// RemoveDevice drops a device and unlinks it from its pool. Devices
// that disappear from discovery are removed rather than kept stale.
func (s *Store) RemoveDevice(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[id]
	if !ok {
		return
	}
	delete(s.devices, id)
	if p, ok := s.pools[d.PoolID]; ok {
		p.DeviceIDs = remove(p.DeviceIDs, id)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
