package codec

import "fmt"

// Kind identifies which variant a Value holds.
type Kind int

const (
	// KindAbsent marks a value that could not be decoded. Consumers
	// must leave the corresponding projection field untouched.
	KindAbsent Kind = iota

	// KindBool holds an on/off or enabled/disabled state.
	KindBool

	// KindNumber holds a scaled numeric reading or level.
	KindNumber

	// KindText holds an identifying or informational string.
	KindText

	// KindColor holds an RGBW colour.
	KindColor

	// KindSchedules holds a decoded schedule slot list.
	KindSchedules
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindColor:
		return "color"
	case KindSchedules:
		return "schedules"
	default:
		return "absent"
	}
}

// Color is an RGBW colour as used by LumiPlus pool lights.
//
// The wire form is {"r":…,"g":…,"b":…,"k":…,"extra":{"w":…}}; the
// colour temperature k is carried through encoding but ignored by
// consumers.
type Color struct {
	R uint8
	G uint8
	B uint8
	W uint8
}

// Value is the tagged variant produced by Decode. Exactly one variant
// field is meaningful, selected by Kind.
type Value struct {
	Kind      Kind
	Bool      bool
	Number    float64
	Text      string
	Color     Color
	Schedules []Schedule
}

// Absent returns the absent value.
func Absent() Value { return Value{Kind: KindAbsent} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// NumberValue returns a numeric value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// TextValue returns a text value.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// ColorValue returns a colour value.
func ColorValue(c Color) Value { return Value{Kind: KindColor, Color: c} }

// SchedulesValue returns a schedule-list value.
func SchedulesValue(s []Schedule) Value { return Value{Kind: KindSchedules, Schedules: s} }

// IsAbsent reports whether the value carries no decoded content.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// String renders the value for logs and diagnostics.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("bool(%v)", v.Bool)
	case KindNumber:
		return fmt.Sprintf("number(%g)", v.Number)
	case KindText:
		return fmt.Sprintf("text(%q)", v.Text)
	case KindColor:
		return fmt.Sprintf("color(%d,%d,%d,%d)", v.Color.R, v.Color.G, v.Color.B, v.Color.W)
	case KindSchedules:
		return fmt.Sprintf("schedules(%d)", len(v.Schedules))
	default:
		return "absent"
	}
}

// Record is a raw component record as returned by the vendor API.
//
// Reported is the last value the device itself confirmed; Desired is
// the last value commanded. After a successful write Desired reflects
// the command immediately while Reported lags until the device
// converges — that lag is the reason optimistic command state exists.
type Record struct {
	Reported  any   `json:"reportedValue"`
	Desired   any   `json:"desiredValue"`
	Timestamp int64 `json:"ts"`
}

// asFloat coerces the dynamic JSON types a reported value may arrive
// as (float64, int, bool, numeric string) into a float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// asString coerces a reported value into a string.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return fmt.Sprintf("%g", s), true
	case int:
		return fmt.Sprintf("%d", s), true
	}
	return "", false
}
