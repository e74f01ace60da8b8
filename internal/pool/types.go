package pool

import (
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/profile"
)

// Pool is one site-level pool with its equipment and readings.
type Pool struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Address fields from the pool details record.
	City        string `json:"city,omitempty"`
	Country     string `json:"country,omitempty"`
	PostalCode  string `json:"postal_code,omitempty"`
	Timezone    string `json:"timezone,omitempty"`

	// Status fields from the pool status record.
	Online bool   `json:"online"`
	Status string `json:"status,omitempty"`

	WaterQuality *WaterQuality `json:"water_quality,omitempty"`

	// DeviceIDs lists the devices assigned to this pool, in discovery
	// order. The devices themselves live in the store's device index.
	DeviceIDs []string `json:"device_ids"`

	UpdatedAt time.Time `json:"updated_at"`
}

// WaterQuality is the site-level chemistry assessment.
type WaterQuality struct {
	Temperature  *float64  `json:"temperature,omitempty"`
	PH           *float64  `json:"ph,omitempty"`
	ORP          *float64  `json:"orp,omitempty"`
	FreeChlorine *float64  `json:"free_chlorine,omitempty"`
	Status       string    `json:"status,omitempty"`
	SampledAt    time.Time `json:"sampled_at"`
}

// Device is one piece of pool equipment with its resolved profile and
// the component state last reconciled from the cloud.
type Device struct {
	ID     string `json:"id"`
	PoolID string `json:"pool_id"`
	Name   string `json:"name"`

	// Identifying strings from discovery.
	Family   string `json:"family,omitempty"`
	Model    string `json:"model,omitempty"`
	Type     string `json:"type,omitempty"`
	Serial   string `json:"serial,omitempty"`
	Firmware string `json:"firmware,omitempty"`

	// ParentID is set on synthetic children split out of a bridge; the
	// bridge device itself never appears in the store.
	ParentID string `json:"parent_id,omitempty"`

	// Profile is the resolved capability description. Nil means the
	// device was discovered but could not be classified; it is kept
	// visible but offers no controls.
	Profile *profile.Profile `json:"-"`

	// ProfileName is the profile's name for serialized views.
	ProfileName string `json:"profile,omitempty"`

	// Components holds the raw records keyed by component id.
	Components map[int]codec.Record `json:"-"`

	// Values holds the decoded values keyed by component id.
	Values map[int]codec.Value `json:"-"`

	// EffectiveSpeed is the derived running speed percent for pumps in
	// auto mode: the speed of the schedule active at the current
	// wall-clock time, nil when no schedule is active or the device is
	// not a pump in auto mode.
	EffectiveSpeed *float64 `json:"effective_speed,omitempty"`

	Connected bool      `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`

	// LastError is the most recent per-device poll failure, cleared on
	// the next successful reconciliation.
	LastError string `json:"last_error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Value returns the decoded value for a component id, or an absent
// value when the component has never been read.
func (d *Device) Value(componentID int) codec.Value {
	if d.Values == nil {
		return codec.Absent()
	}
	v, ok := d.Values[componentID]
	if !ok {
		return codec.Absent()
	}
	return v
}

// FeatureValue resolves a feature's decoded value through the profile,
// reading from the feature's read component.
func (d *Device) FeatureValue(feature string) codec.Value {
	if d.Profile == nil {
		return codec.Absent()
	}
	id, ok := d.Profile.FeatureReadComponent(feature)
	if !ok {
		return codec.Absent()
	}
	return d.Value(id)
}

// Controllable reports whether the device resolved to a profile and is
// currently reachable.
func (d *Device) Controllable() bool {
	return d.Profile != nil && d.Connected
}

// DeepCopy returns an independent copy of the device. Maps are cloned;
// the profile pointer is shared because profiles are immutable after
// registration.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	cpy.EffectiveSpeed = copyFloat(d.EffectiveSpeed)
	if d.Components != nil {
		cpy.Components = make(map[int]codec.Record, len(d.Components))
		for id, rec := range d.Components {
			cpy.Components[id] = rec
		}
	}
	if d.Values != nil {
		cpy.Values = make(map[int]codec.Value, len(d.Values))
		for id, v := range d.Values {
			cpy.Values[id] = v
		}
	}
	return &cpy
}

// DeepCopy returns an independent copy of the pool.
func (p *Pool) DeepCopy() *Pool {
	if p == nil {
		return nil
	}
	cpy := *p
	if p.DeviceIDs != nil {
		cpy.DeviceIDs = make([]string, len(p.DeviceIDs))
		copy(cpy.DeviceIDs, p.DeviceIDs)
	}
	if p.WaterQuality != nil {
		wq := *p.WaterQuality
		wq.Temperature = copyFloat(p.WaterQuality.Temperature)
		wq.PH = copyFloat(p.WaterQuality.PH)
		wq.ORP = copyFloat(p.WaterQuality.ORP)
		wq.FreeChlorine = copyFloat(p.WaterQuality.FreeChlorine)
		cpy.WaterQuality = &wq
	}
	return &cpy
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
