package resilience

import (
	"sync"
	"time"
)

// Default circuit breaker settings, matching the vendor API's observed
// tolerance for sustained failure before it starts shedding clients.
const (
	// DefaultFailureThreshold is the number of consecutive failures
	// that opens the breaker.
	DefaultFailureThreshold = 5

	// DefaultRecoveryTimeout is how long the breaker stays open before
	// allowing a recovery probe.
	DefaultRecoveryTimeout = 300 * time.Second

	// halfOpenSuccesses is the number of consecutive successes in
	// HALF_OPEN required to close the breaker.
	halfOpenSuccesses = 2
)

// CircuitState represents the current state of a CircuitBreaker.
type CircuitState int

const (
	// StateClosed allows all executions; failures are counted.
	StateClosed CircuitState = iota

	// StateOpen rejects all executions until the recovery timeout.
	StateOpen

	// StateHalfOpen allows executions while probing for recovery.
	StateHalfOpen
)

// String returns a human-readable state name for logging.
func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker prevents cascade failures by rejecting requests while
// the vendor API is consistently failing.
//
// State spans the lifetime of the owning gateway; it is reset only by
// constructing a new breaker.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu           sync.Mutex
	state        CircuitState
	failureCount int
	successCount int
	lastFailure  time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state.
//
// Non-positive threshold or timeout values fall back to the defaults.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            StateClosed,
		now:              time.Now,
	}
}

// CanExecute reports whether a request may be attempted.
//
// While OPEN, the first call after the recovery timeout has elapsed
// moves the breaker to HALF_OPEN and is allowed as the recovery probe.
func (b *CircuitBreaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a successful request.
//
// In HALF_OPEN, two consecutive successes close the breaker and reset
// the failure counter. In CLOSED, the failure counter is reset.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= halfOpenSuccesses {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure records a failed request.
//
// In HALF_OPEN a single failure reopens the breaker. In CLOSED the
// breaker opens once the consecutive-failure threshold is reached.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()
	b.successCount = 0

	switch {
	case b.state == StateHalfOpen:
		b.state = StateOpen
	case b.failureCount >= b.failureThreshold:
		b.state = StateOpen
	}
}

// State returns the breaker's current state.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
