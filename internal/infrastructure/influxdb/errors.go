package influxdb

import "errors"

// Sentinel errors for the telemetry client. Check with errors.Is():
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without chemistry telemetry
//	}
var (
	// ErrDisabled is returned by Connect when the influxdb section of
	// the configuration has enabled: false. Callers treat it as "skip
	// telemetry", not as a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps a failed ping or health probe during
	// Connect. Telemetry is optional, so main surfaces this at startup
	// rather than retrying forever.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close, or when
	// the client was never connected. Point writes are asynchronous
	// and report through the error callback instead.
	ErrNotConnected = errors.New("influxdb: not connected")
)
