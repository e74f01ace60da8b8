package profile

import "github.com/poolsync/poolsync-core/internal/codec"

// DeviceType is the coarse equipment category a profile describes.
type DeviceType string

// Known device types.
const (
	TypePump        DeviceType = "pump"
	TypeHeatPump    DeviceType = "heat_pump"
	TypeChlorinator DeviceType = "chlorinator"
	TypeHeater      DeviceType = "heater"
	TypeLight       DeviceType = "light"
)

// Adapter identifies a platform projection a profile supports. The
// engine and the platform bridge consult these to decide which control
// and sensor surfaces to expose for a device.
type Adapter string

// Supported adapter kinds.
const (
	AdapterSwitch            Adapter = "switch"
	AdapterSwitchAuto        Adapter = "switch_auto"
	AdapterSelect            Adapter = "select"
	AdapterNumber            Adapter = "number"
	AdapterClimate           Adapter = "climate"
	AdapterLight             Adapter = "light"
	AdapterTime              Adapter = "time"
	AdapterSensorSpeed       Adapter = "sensor_speed"
	AdapterSensorSchedule    Adapter = "sensor_schedule"
	AdapterSensorInfo        Adapter = "sensor_info"
	AdapterSensorTemperature Adapter = "sensor_temperature"
	AdapterSensorBrightness  Adapter = "sensor_brightness"
)

// Feature names a profile may declare.
const (
	FeaturePower             = "power"
	FeatureAutoMode          = "auto_mode"
	FeatureSpeedControl      = "speed_control"
	FeatureSchedules         = "schedules"
	FeatureTemperature       = "temperature_control"
	FeaturePresetModes       = "preset_modes"
	FeatureBoostMode         = "boost_mode"
	FeatureModeControl       = "mode_control"
	FeatureChlorination      = "chlorination_level"
	FeaturePHSetpoint        = "ph_setpoint"
	FeatureORPSetpoint       = "orp_setpoint"
	FeatureColor             = "color"
	FeatureBrightness        = "brightness"
)

// FeatureSpec carries a feature's wiring for one profile.
//
// Component is the primary component id for the feature; Read is set
// when the readable component differs from the writable one (some
// chlorinators split setpoint write and reading across ids). Fallback
// is an ordered list of component ids to try in sequence when a write
// to the primary is rejected — trial-and-error discovered per family
// and preserved as explicit data rather than hidden control flow.
type FeatureSpec struct {
	Component int
	Read      int
	Fallback  []int
}

// Signature is an in-band family marker: a component whose reported
// value definitively identifies the family when the identifying
// strings are ambiguous or missing.
type Signature struct {
	Component int
	Patterns  []string
}

// Profile is the resolved capability description for a device. It
// drives which components the engine scans and which adapters the
// platform bridge offers.
type Profile struct {
	Name       string
	DeviceType DeviceType

	// Codec selects the per-family component table used to decode and
	// encode this device's components.
	Codec codec.Family

	// Matching patterns, wildcard-capable ("LG*", "*.nn_*", "z250").
	IdentifierPatterns []string
	NamePatterns       []string
	FamilyPatterns     []string
	ModelPatterns      []string

	// Signature is the optional definitive in-band marker.
	Signature *Signature

	// ScanRange is the contiguous component range [0, ScanRange) to
	// probe; SpecificComponents lists additional ids outside it.
	ScanRange          int
	SpecificComponents []int
	RequiredComponents []int

	Adapters []Adapter
	Features map[string]FeatureSpec

	// Priority breaks score ties; higher wins.
	Priority int
}

// Identity carries everything the classifier may inspect about a
// device: the identifying strings from discovery plus any component
// records already fetched (for signature checks).
type Identity struct {
	DeviceID   string
	Name       string
	Family     string
	Model      string
	TypeHint   string
	Components map[int]codec.Record
}

// SupportsAdapter reports whether the profile offers the adapter kind.
func (p *Profile) SupportsAdapter(a Adapter) bool {
	for _, kind := range p.Adapters {
		if kind == a {
			return true
		}
	}
	return false
}

// HasFeature reports whether the profile declares the feature.
func (p *Profile) HasFeature(name string) bool {
	_, ok := p.Features[name]
	return ok
}

// FeatureComponent returns the primary component id for a feature and
// whether the feature is declared.
func (p *Profile) FeatureComponent(name string) (int, bool) {
	spec, ok := p.Features[name]
	if !ok {
		return 0, false
	}
	return spec.Component, true
}

// FeatureReadComponent returns the component to read a feature's value
// from, falling back to the primary when no separate read id is set.
func (p *Profile) FeatureReadComponent(name string) (int, bool) {
	spec, ok := p.Features[name]
	if !ok {
		return 0, false
	}
	if spec.Read != 0 {
		return spec.Read, true
	}
	return spec.Component, true
}

// FeatureFallback returns the ordered component-id fallback list for a
// feature, primary first.
func (p *Profile) FeatureFallback(name string) []int {
	spec, ok := p.Features[name]
	if !ok {
		return nil
	}
	out := make([]int, 0, 1+len(spec.Fallback))
	out = append(out, spec.Component)
	out = append(out, spec.Fallback...)
	return out
}

// ScanComponents returns the full list of component ids the engine
// should poll for this profile: the contiguous scan range followed by
// the specific components outside it, deduplicated, in order.
func (p *Profile) ScanComponents() []int {
	seen := make(map[int]bool, p.ScanRange+len(p.SpecificComponents))
	out := make([]int, 0, p.ScanRange+len(p.SpecificComponents))
	for id := 0; id < p.ScanRange; id++ {
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range p.SpecificComponents {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
