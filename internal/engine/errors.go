package engine

import "errors"

var (
	// ErrUpdateFailed indicates a poll cycle failed before any device
	// could be reconciled; last-known-good state is preserved.
	ErrUpdateFailed = errors.New("engine: update failed")

	// ErrCycleRunning indicates a manual cycle was requested while the
	// previous one was still in flight.
	ErrCycleRunning = errors.New("engine: cycle already running")

	// ErrNotControllable indicates a command targeted a device with no
	// resolved profile or one that is offline.
	ErrNotControllable = errors.New("engine: device not controllable")

	// ErrUnsupportedCommand indicates the device's profile does not
	// declare the feature the command requires.
	ErrUnsupportedCommand = errors.New("engine: command not supported by device")

	// ErrScheduleOverlap indicates a schedule edit would produce
	// overlapping windows on the same day.
	ErrScheduleOverlap = errors.New("engine: schedule windows overlap")
)
