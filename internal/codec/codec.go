package codec

import (
	"fmt"
	"math"
)

// Family selects which component table decodes a device. The registry
// resolves a device's family once from its profile; the ids below are
// per-family conventions discovered through traffic inspection, not
// universals.
type Family string

// Known device families.
const (
	FamilyPump          Family = "pump"
	FamilyHeatPump      Family = "heat_pump"
	FamilyChlorinator   Family = "chlorinator"
	FamilyChlorinatorCC Family = "chlorinator_cc"
	FamilyLight         Family = "light"
	FamilyHeater        Family = "heater"
)

// Plausibility bands for scaled temperature readings. Values that land
// outside the band after scaling decode to Absent: the component id is
// assumed to be misattributed for this device.
const (
	waterTempMin  = 5.0
	waterTempMax  = 35.0
	targetTempMin = 10.0
	targetTempMax = 50.0
)

// Pump speed levels. The vendor encodes speed as an enumerated level;
// the percentages are what the mobile app displays for each level.
var speedLevelPercent = map[int]float64{
	0: 45,
	1: 65,
	2: 100,
}

// componentCodec pairs the decode and encode directions for one
// component id within a family. encode is nil for read-only components.
type componentCodec struct {
	decode func(Record) Value
	encode func(Value) (any, error)
}

// Decode converts a raw component record into a semantic value using
// the family's component table. Components the table does not know, and
// raw shapes a decoder does not recognise, yield Absent — a single
// unmapped component must never abort the rest of a poll.
func Decode(family Family, componentID int, rec Record) Value {
	table, ok := familyTables[family]
	if !ok {
		return Absent()
	}
	cc, ok := table[componentID]
	if !ok || cc.decode == nil {
		return Absent()
	}
	return cc.decode(rec)
}

// Encode converts a semantic value into the desired-value payload for a
// component write. Unlike Decode it returns errors: a caller about to
// issue a network write needs to know the value cannot be expressed.
func Encode(family Family, componentID int, v Value) (any, error) {
	table, ok := familyTables[family]
	if !ok {
		return nil, fmt.Errorf("%w: family %q", ErrUnknownComponent, family)
	}
	cc, ok := table[componentID]
	if !ok || cc.encode == nil {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnknownComponent, family, componentID)
	}
	return cc.encode(v)
}

// Known reports whether the family table has a decoder for the
// component. The engine uses this to keep raw records for unknown
// components without touching the normalized projection.
func Known(family Family, componentID int) bool {
	table, ok := familyTables[family]
	if !ok {
		return false
	}
	_, ok = table[componentID]
	return ok
}

// SpeedLevelPercent maps an enumerated pump speed level to its display
// percentage. Unknown levels fail soft to zero.
func SpeedLevelPercent(level int) float64 {
	return speedLevelPercent[level]
}

// SpeedPercentLevel maps a percentage back to the nearest enumerated
// level for writes.
func SpeedPercentLevel(percent float64) int {
	switch {
	case percent <= 45:
		return 0
	case percent <= 65:
		return 1
	default:
		return 2
	}
}

// ─── Decoders ──────────────────────────────────────────────────────

func decodeBool(rec Record) Value {
	n, ok := asFloat(rec.Reported)
	if !ok {
		return Absent()
	}
	return BoolValue(n != 0)
}

func decodeNumber(rec Record) Value {
	n, ok := asFloat(rec.Reported)
	if !ok {
		return Absent()
	}
	return NumberValue(n)
}

func decodeText(rec Record) Value {
	s, ok := asString(rec.Reported)
	if !ok || s == "" {
		return Absent()
	}
	return TextValue(s)
}

// decodeScaled divides the raw value by divisor and rejects results
// outside [min, max].
func decodeScaled(divisor, min, max float64) func(Record) Value {
	return func(rec Record) Value {
		n, ok := asFloat(rec.Reported)
		if !ok {
			return Absent()
		}
		scaled := n / divisor
		if scaled < min || scaled > max {
			return Absent()
		}
		return NumberValue(scaled)
	}
}

// decodeSpeedLevel maps the enumerated level to a display percentage.
func decodeSpeedLevel(rec Record) Value {
	n, ok := asFloat(rec.Reported)
	if !ok {
		return Absent()
	}
	return NumberValue(SpeedLevelPercent(int(n)))
}

// decodeSchedules accepts both observed schedule encodings: the direct
// slot list and the packed dayPrograms/slots form.
func decodeSchedules(rec Record) Value {
	switch raw := rec.Reported.(type) {
	case []any:
		return SchedulesValue(decodeScheduleList(raw))
	case map[string]any:
		if _, ok := raw["programs"]; ok {
			return SchedulesValue(decodeSlotSchedules(raw))
		}
	}
	return Absent()
}

func decodeColor(rec Record) Value {
	raw, ok := rec.Reported.(map[string]any)
	if !ok {
		return Absent()
	}
	r, rok := asFloat(raw["r"])
	g, gok := asFloat(raw["g"])
	b, bok := asFloat(raw["b"])
	if !rok || !gok || !bok {
		return Absent()
	}
	var w float64
	if extra, ok := raw["extra"].(map[string]any); ok {
		w, _ = asFloat(extra["w"])
	}
	return ColorValue(Color{R: uint8(r), G: uint8(g), B: uint8(b), W: uint8(w)})
}

// ─── Encoders ──────────────────────────────────────────────────────

func encodeBool(v Value) (any, error) {
	if v.Kind != KindBool {
		return nil, fmt.Errorf("%w: want bool, got %s", ErrNotEncodable, v.Kind)
	}
	if v.Bool {
		return 1, nil
	}
	return 0, nil
}

// encodeBoolString encodes on/off as "1"/"0". LumiPlus light power is
// the one component observed to take a string desired value.
func encodeBoolString(v Value) (any, error) {
	if v.Kind != KindBool {
		return nil, fmt.Errorf("%w: want bool, got %s", ErrNotEncodable, v.Kind)
	}
	if v.Bool {
		return "1", nil
	}
	return "0", nil
}

func encodeInt(v Value) (any, error) {
	if v.Kind != KindNumber {
		return nil, fmt.Errorf("%w: want number, got %s", ErrNotEncodable, v.Kind)
	}
	return int(math.Round(v.Number)), nil
}

// encodeScaled multiplies by factor, rounds, and rejects values whose
// unscaled form falls outside [min, max].
func encodeScaled(factor, min, max float64) func(Value) (any, error) {
	return func(v Value) (any, error) {
		if v.Kind != KindNumber {
			return nil, fmt.Errorf("%w: want number, got %s", ErrNotEncodable, v.Kind)
		}
		if v.Number < min || v.Number > max {
			return nil, fmt.Errorf("%w: %g outside [%g, %g]", ErrNotEncodable, v.Number, min, max)
		}
		return int(math.Round(v.Number * factor)), nil
	}
}

func encodeSpeedLevel(v Value) (any, error) {
	if v.Kind != KindNumber {
		return nil, fmt.Errorf("%w: want number, got %s", ErrNotEncodable, v.Kind)
	}
	return SpeedPercentLevel(v.Number), nil
}

// encodeTens rounds to the nearest multiple of ten; the CC-series
// chlorinator only accepts chlorination levels in steps of 10.
func encodeTens(v Value) (any, error) {
	if v.Kind != KindNumber {
		return nil, fmt.Errorf("%w: want number, got %s", ErrNotEncodable, v.Kind)
	}
	return int(math.Round(v.Number/10)) * 10, nil
}

func encodeColor(v Value) (any, error) {
	if v.Kind != KindColor {
		return nil, fmt.Errorf("%w: want color, got %s", ErrNotEncodable, v.Kind)
	}
	return map[string]any{
		"r":     int(v.Color.R),
		"g":     int(v.Color.G),
		"b":     int(v.Color.B),
		"k":     5000,
		"extra": map[string]any{"w": int(v.Color.W)},
	}, nil
}

func encodeSchedules(v Value) (any, error) {
	if v.Kind != KindSchedules {
		return nil, fmt.Errorf("%w: want schedules, got %s", ErrNotEncodable, v.Kind)
	}
	return WireSchedules(v.Schedules), nil
}

// WireSchedules pads the slot set to the fixed count and converts it to
// the exact wire shape of a schedule write.
func WireSchedules(schedules []Schedule) []ScheduleSlot {
	padded := PadSchedules(schedules)
	out := make([]ScheduleSlot, len(padded))
	for i, s := range padded {
		w := ScheduleSlot{
			ID:        s.ID,
			GroupID:   s.GroupID,
			Enabled:   s.Enabled,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
		}
		w.StartActions.OperationName = s.Operation
		out[i] = w
	}
	return out
}

// ─── Family Tables ─────────────────────────────────────────────────

// Device-info components 0–5 are common to every connected device.
var infoComponents = map[int]componentCodec{
	0: {decode: decodeText},   // serial / device id
	1: {decode: decodeText},   // part numbers
	2: {decode: decodeNumber}, // signal strength
	3: {decode: decodeText},   // firmware version
	4: {decode: decodeNumber}, // hardware error counter
	5: {decode: decodeNumber}, // communication error counter
}

var familyTables = map[Family]map[int]componentCodec{
	FamilyPump: withInfo(map[int]componentCodec{
		9:  {decode: decodeBool, encode: encodeBool},        // pump power
		10: {decode: decodeBool, encode: encodeBool},        // auto mode
		11: {decode: decodeSpeedLevel, encode: encodeSpeedLevel},
		15: {decode: decodeNumber, encode: encodeInt},       // direct speed percent (40–105)
		20: {decode: decodeSchedules, encode: encodeSchedules},
		21: {decode: decodeNumber}, // network status
	}),

	FamilyHeatPump: withInfo(map[int]componentCodec{
		9:  {decode: decodeBool, encode: encodeBool}, // power
		13: {decode: decodeBool, encode: encodeBool}, // heating state
		14: {decode: decodeNumber, encode: encodeInt}, // preset mode
		15: {
			decode: decodeScaled(10, targetTempMin, targetTempMax),
			encode: encodeScaled(10, targetTempMin, targetTempMax),
		},
		19: {decode: decodeScaled(10, waterTempMin, waterTempMax)},
		62: {decode: decodeScaled(10, waterTempMin, waterTempMax)},
		65: {decode: decodeScaled(10, waterTempMin, waterTempMax)},
	}),

	FamilyChlorinator: withInfo(map[int]componentCodec{
		4:   {decode: decodeNumber, encode: encodeInt},      // chlorination level (write)
		8:   {encode: encodeScaled(100, 0, 14)},             // pH setpoint (write)
		11:  {encode: encodeInt},                            // ORP setpoint mV (write)
		20:  {decode: decodeNumber, encode: encodeInt},      // mode 0=off 1=on 2=auto
		164: {decode: decodeNumber},                         // chlorination level (read)
		172: {decode: decodeScaled(100, 0, 14)},             // pH
		177: {decode: decodeNumber},                         // ORP mV
		178: {decode: decodeNumber},                         // free chlorine mg/l
		183: {decode: decodeScaled(10, waterTempMin, waterTempMax)},
		185: {decode: decodeScaled(100, 0, 100)},            // salinity g/l
		245: {decode: decodeBool, encode: encodeBool},       // boost mode
	}),

	FamilyChlorinatorCC: withInfo(map[int]componentCodec{
		10: {decode: decodeNumber, encode: encodeTens}, // chlorination level
		16: {
			decode: decodeScaled(100, 0, 14),
			encode: encodeScaled(100, 0, 14),
		}, // pH setpoint
		20:  {decode: decodeNumber, encode: encodeInt}, // ORP setpoint mV
		21:  {decode: decodeScaled(10, waterTempMin, waterTempMax)},
		103: {decode: decodeBool, encode: encodeBool}, // boost mode
		172: {decode: decodeScaled(100, 0, 14)},       // pH
		177: {decode: decodeNumber},                   // ORP mV
		178: {decode: decodeScaled(100, 0, 100)},      // free chlorine mg/l
		185: {decode: decodeScaled(100, 0, 100)},      // salinity g/l
	}),

	FamilyLight: withInfo(map[int]componentCodec{
		11: {decode: decodeBool, encode: encodeBoolString}, // power
		17: {decode: decodeNumber, encode: encodeInt},      // brightness 0–100
		45: {decode: decodeColor, encode: encodeColor},     // RGBW
	}),

	FamilyHeater: withInfo(map[int]componentCodec{
		9: {decode: decodeBool, encode: encodeBool},
		15: {
			decode: decodeScaled(10, targetTempMin, targetTempMax),
			encode: encodeScaled(10, targetTempMin, targetTempMax),
		},
		19: {decode: decodeScaled(10, waterTempMin, waterTempMax)},
	}),
}

// withInfo merges the shared info components into a family table.
func withInfo(table map[int]componentCodec) map[int]componentCodec {
	for id, cc := range infoComponents {
		if _, exists := table[id]; !exists {
			table[id] = cc
		}
	}
	return table
}
