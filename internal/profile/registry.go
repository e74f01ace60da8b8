package profile

import (
	"sort"
	"strings"

	"github.com/poolsync/poolsync-core/internal/codec"
)

// Classifier scoring weights. The signature bonus deliberately exceeds
// every possible combination of string matches: identifying strings
// are user-editable and unreliable, the in-band marker is not.
const (
	scoreIdentifier = 50
	scoreName       = 30
	scoreFamily     = 20
	scoreModel      = 20
	scoreTypeHint   = 10
	scoreSignature  = 100

	// minConfidence is the score below which the classifier falls back
	// to the generic tier. It sits above the type-hint weight: a hint
	// alone never selects a specific model profile.
	minConfidence = 20

	// defaultScanRange is used for devices without a resolved profile
	// where a caller still needs a bound.
	defaultScanRange = 25
)

// Registry is the ranked profile rule set.
//
// The built-in rules cover the equipment observed in the field; tests
// and future families can append to a copy via Register.
type Registry struct {
	profiles []*Profile
}

// NewRegistry returns a registry loaded with the built-in profiles,
// pre-sorted for deterministic evaluation order.
func NewRegistry() *Registry {
	r := &Registry{profiles: builtinProfiles()}
	r.sortProfiles()
	return r
}

// Register adds a profile to the rule set.
func (r *Registry) Register(p *Profile) {
	r.profiles = append(r.profiles, p)
	r.sortProfiles()
}

// sortProfiles fixes evaluation order: priority descending, then name,
// so classification never depends on insertion order.
func (r *Registry) sortProfiles() {
	sort.SliceStable(r.profiles, func(i, j int) bool {
		if r.profiles[i].Priority != r.profiles[j].Priority {
			return r.profiles[i].Priority > r.profiles[j].Priority
		}
		return r.profiles[i].Name < r.profiles[j].Name
	})
}

// Classify resolves the best-matching profile for a device.
//
// Bridges return ErrBridge: only their children are controllable.
// Devices that score below the confidence threshold fall back to the
// generic profile for their type hint; failing that, ErrUnsupported.
func (r *Registry) Classify(id Identity) (*Profile, error) {
	if strings.Contains(strings.ToLower(id.Family), "bridge") {
		return nil, ErrBridge
	}

	var best *Profile
	bestScore := 0

	for _, p := range r.profiles {
		score := r.score(p, id)
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	if bestScore < minConfidence {
		if generic := r.genericFor(id.TypeHint); generic != nil {
			return generic, nil
		}
		return nil, ErrUnsupported
	}
	return best, nil
}

// score rates one profile against a device identity.
func (r *Registry) score(p *Profile, id Identity) int {
	score := 0
	if matchesAny(id.DeviceID, p.IdentifierPatterns) {
		score += scoreIdentifier
	}
	if matchesAny(id.Name, p.NamePatterns) {
		score += scoreName
	}
	if matchesAny(id.Family, p.FamilyPatterns) {
		score += scoreFamily
	}
	if matchesAny(id.Model, p.ModelPatterns) {
		score += scoreModel
	}
	if p.DeviceType != "" && strings.Contains(strings.ToLower(id.TypeHint), string(p.DeviceType)) {
		score += scoreTypeHint
	}
	if p.Signature != nil && r.signatureMatches(p.Signature, id) {
		score += scoreSignature
	}
	return score
}

// signatureMatches checks the in-band marker component against the
// profile's expected value patterns.
func (r *Registry) signatureMatches(sig *Signature, id Identity) bool {
	rec, ok := id.Components[sig.Component]
	if !ok {
		return false
	}
	reported, ok := rec.Reported.(string)
	if !ok {
		return false
	}
	return matchesAny(reported, sig.Patterns)
}

// genericFor returns the generic fallback profile for a coarse device
// type hint, or nil when the hint matches nothing.
func (r *Registry) genericFor(hint string) *Profile {
	hint = strings.ToLower(hint)
	var want string
	switch {
	case strings.Contains(hint, "heat_pump"), strings.Contains(hint, "heat"):
		want = "generic_heat_pump"
	case strings.Contains(hint, "pump"):
		want = "generic_pump"
	case strings.Contains(hint, "heater"):
		want = "generic_heater"
	case strings.Contains(hint, "light"):
		want = "generic_light"
	default:
		return nil
	}
	for _, p := range r.profiles {
		if p.Name == want {
			return p
		}
	}
	return nil
}

// matchesAny reports whether the value matches any pattern. Patterns
// are case-insensitive; "*" wildcards anchor the rest of the pattern
// ("LG*" is a prefix, "*.nn_*" an infix), a pattern without wildcards
// matches as a substring.
func matchesAny(value string, patterns []string) bool {
	if value == "" || len(patterns) == 0 {
		return false
	}
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if matchWildcard(strings.ToLower(pattern), value) {
			return true
		}
	}
	return false
}

func matchWildcard(pattern, value string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.Contains(value, pattern)
	}

	parts := strings.Split(pattern, "*")
	// Anchored prefix.
	if parts[0] != "" {
		if !strings.HasPrefix(value, parts[0]) {
			return false
		}
		value = value[len(parts[0]):]
	}
	// Middle segments must appear in order.
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	// Anchored suffix.
	last := parts[len(parts)-1]
	if last != "" && !strings.HasSuffix(value, last) {
		return false
	}
	return true
}

// DefaultScanRange is the component scan bound for unclassified
// devices that are still discovered.
func DefaultScanRange() int { return defaultScanRange }

// builtinProfiles is the field-observed rule set. Priorities keep the
// specific models above the family generics and the generics above the
// type-hint fallback threshold.
func builtinProfiles() []*Profile {
	return []*Profile{
		{
			Name:               "lg_heat_pump",
			DeviceType:         TypeHeatPump,
			Codec:              codec.FamilyHeatPump,
			IdentifierPatterns: []string{"LG*"},
			NamePatterns:       []string{"eco", "elyo"},
			FamilyPatterns:     []string{"eco elyo"},
			ModelPatterns:      []string{"astralpool"},
			Signature:          &Signature{Component: 7, Patterns: []string{"BXWAA"}},
			ScanRange:          5,
			SpecificComponents: []int{9, 13, 14, 15, 19},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterClimate, AdapterSwitch, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeaturePower:       {Component: 9},
				FeaturePresetModes: {Component: 14},
				FeatureTemperature: {Component: 15, Fallback: []int{12, 13, 14, 16}},
			},
			Priority: 100,
		},
		{
			Name:               "z250iq_heat_pump",
			DeviceType:         TypeHeatPump,
			Codec:              codec.FamilyHeatPump,
			IdentifierPatterns: []string{"LF*"},
			NamePatterns:       []string{"z250", "z25"},
			FamilyPatterns:     []string{"heat pump"},
			ScanRange:          5,
			SpecificComponents: []int{9, 13, 14, 15, 19},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterClimate, AdapterSwitch, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeaturePower:       {Component: 9},
				FeaturePresetModes: {Component: 14},
				FeatureTemperature: {Component: 15, Fallback: []int{12, 13, 14, 16}},
			},
			Priority: 95,
		},
		{
			Name:               "cc_chlorinator",
			DeviceType:         TypeChlorinator,
			Codec:              codec.FamilyChlorinatorCC,
			IdentifierPatterns: []string{"CC24033907*"},
			FamilyPatterns:     []string{"chlorinator"},
			ScanRange:          25,
			SpecificComponents: []int{10, 16, 20, 21, 103, 172, 177, 178, 185},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterSwitch, AdapterNumber, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeatureChlorination: {Component: 10},
				FeaturePHSetpoint:   {Component: 16},
				FeatureORPSetpoint:  {Component: 20},
				FeatureBoostMode:    {Component: 103},
			},
			Priority: 85,
		},
		{
			Name:               "bridged_chlorinator",
			DeviceType:         TypeChlorinator,
			Codec:              codec.FamilyChlorinator,
			IdentifierPatterns: []string{"*.nn_*"},
			FamilyPatterns:     []string{"chlorinator"},
			ScanRange:          25,
			SpecificComponents: []int{4, 8, 11, 20, 164, 172, 177, 178, 183, 185, 245},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterSwitch, AdapterSelect, AdapterNumber, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeatureChlorination: {Component: 4, Read: 164},
				FeatureModeControl:  {Component: 20},
				FeaturePHSetpoint:   {Component: 8, Read: 172},
				FeatureORPSetpoint:  {Component: 11, Read: 177},
				FeatureBoostMode:    {Component: 245},
			},
			Priority: 80,
		},
		{
			Name:               "e30iq_pump",
			DeviceType:         TypePump,
			Codec:              codec.FamilyPump,
			IdentifierPatterns: []string{"E30*", "PUMP*"},
			ScanRange:          5,
			SpecificComponents: []int{9, 10, 11, 15, 20, 21},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters: []Adapter{
				AdapterSwitch, AdapterSwitchAuto, AdapterSelect, AdapterNumber,
				AdapterSensorSpeed, AdapterSensorSchedule, AdapterSensorInfo, AdapterTime,
			},
			Features: map[string]FeatureSpec{
				FeaturePower:        {Component: 9},
				FeatureAutoMode:     {Component: 10},
				FeatureSpeedControl: {Component: 11},
				FeatureSchedules:    {Component: 20},
			},
			Priority: 50,
		},
		{
			Name:               "lumiplus_light",
			DeviceType:         TypeLight,
			Codec:              codec.FamilyLight,
			FamilyPatterns:     []string{"lumiplus"},
			ScanRange:          15,
			SpecificComponents: []int{11, 17, 45},
			Adapters:           []Adapter{AdapterLight, AdapterSensorBrightness, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeaturePower:      {Component: 11},
				FeatureBrightness: {Component: 17},
				FeatureColor:      {Component: 45},
			},
			Priority: 40,
		},
		{
			Name:               "generic_heat_pump",
			DeviceType:         TypeHeatPump,
			Codec:              codec.FamilyHeatPump,
			ScanRange:          5,
			SpecificComponents: []int{9, 13, 14, 15},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterClimate, AdapterSwitch, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeaturePower:       {Component: 9},
				FeatureTemperature: {Component: 15, Fallback: []int{12, 13, 14, 16}},
			},
			Priority: 30,
		},
		{
			Name:       "generic_heater",
			DeviceType: TypeHeater,
			Codec:      codec.FamilyHeater,
			ScanRange:  25,
			Adapters:   []Adapter{AdapterSwitch, AdapterSensorTemperature},
			Features: map[string]FeatureSpec{
				FeaturePower:       {Component: 9},
				FeatureTemperature: {Component: 15},
			},
			Priority: 20,
		},
		{
			Name:       "generic_light",
			DeviceType: TypeLight,
			Codec:      codec.FamilyLight,
			ScanRange:  15,
			Adapters:   []Adapter{AdapterSwitch, AdapterSensorBrightness},
			Features: map[string]FeatureSpec{
				FeaturePower: {Component: 11},
			},
			Priority: 20,
		},
		{
			Name:               "generic_pump",
			DeviceType:         TypePump,
			Codec:              codec.FamilyPump,
			ScanRange:          5,
			SpecificComponents: []int{9, 10},
			RequiredComponents: []int{0, 1, 2, 3},
			Adapters:           []Adapter{AdapterSwitch, AdapterSwitchAuto, AdapterSensorInfo},
			Features: map[string]FeatureSpec{
				FeaturePower:    {Component: 9},
				FeatureAutoMode: {Component: 10},
			},
			Priority: 10,
		},
	}
}
