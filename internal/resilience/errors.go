package resilience

import "errors"

// Domain errors for the resilience package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, resilience.ErrCircuitOpen) {
//	    // back off, do not retry immediately
//	}
var (
	// ErrCircuitOpen is returned when the circuit breaker rejects an
	// execution attempt because the recovery timeout has not elapsed.
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")

	// ErrRateLimited is returned when the sliding-window rate limiter
	// rejects an execution attempt.
	ErrRateLimited = errors.New("resilience: rate limit exceeded")
)
