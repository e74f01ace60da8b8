package codec

import "errors"

// Domain errors for the codec package.
//
// Decoding never returns errors (unrecognised shapes yield Absent);
// these sentinels apply to the encode direction only.
var (
	// ErrUnknownComponent is returned when encoding targets a component
	// the family table has no entry for.
	ErrUnknownComponent = errors.New("codec: unknown component")

	// ErrNotEncodable is returned when a component is read-only or the
	// supplied value kind does not match the component's codec.
	ErrNotEncodable = errors.New("codec: value not encodable")
)
