package profile

import "errors"

// Domain errors for the profile package.
var (
	// ErrUnsupported is returned when no profile matches a device. The
	// caller must not create adapters for it or poll beyond discovery.
	ErrUnsupported = errors.New("profile: unsupported device")

	// ErrBridge is returned for bridge aggregator devices. Bridges are
	// never controllable at the top level; only their children are
	// classified and polled.
	ErrBridge = errors.New("profile: bridge device has no profile")
)
