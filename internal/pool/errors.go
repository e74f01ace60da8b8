package pool

import "errors"

var (
	// ErrPoolNotFound is returned when a pool ID is not in the store.
	ErrPoolNotFound = errors.New("pool: pool not found")

	// ErrDeviceNotFound is returned when a device ID is not in the store.
	ErrDeviceNotFound = errors.New("pool: device not found")
)
