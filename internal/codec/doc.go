// Package codec converts raw Fluidra component records into typed
// semantic values and back.
//
// The vendor API addresses device state as numbered "components", each
// carrying a reported value (last value the device confirmed) and a
// desired value (last value commanded). What a given component number
// means — and how its raw value is encoded — differs per device
// family: the same id can be a pump power bit on one family and an ORP
// setpoint on another. The mappings here were discovered through
// traffic inspection of the mobile app and are registered as per-family
// lookup tables, so supporting a new family is a data addition rather
// than a new branch in a dispatch function.
//
// # Semantic Values
//
// Decoding produces a tagged Value (boolean, number, text, colour or
// schedule list) so that consumers switch exhaustively on Value.Kind
// instead of probing dynamic types. A decode that does not recognise
// the raw shape yields an Absent value, never an error: one malformed
// component must not abort the rest of a poll cycle.
//
// # Plausibility Bands
//
// Scaled readings are range-checked after scaling. A "water
// temperature" outside 5–35 °C or a "target temperature" outside
// 10–50 °C decodes to Absent; this guards against component numbers
// that are misattributed across device families.
//
// # Thread Safety
//
// All functions are pure; the lookup tables are built at init time and
// never mutated afterwards.
package codec
