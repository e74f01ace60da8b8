// Package resilience provides the circuit breaker and rate limiter that
// guard every call the Fluidra gateway makes to the vendor cloud.
//
// The two guards are independent and composable: the gateway consults
// both before touching the network, and records the outcome of every
// attempt on the breaker and every execution on the limiter.
//
// # Circuit Breaker
//
// The breaker follows the classic three-state model:
//
//	CLOSED ──(N consecutive failures)──► OPEN
//	OPEN ──(recovery timeout elapsed)──► HALF_OPEN
//	HALF_OPEN ──(2 successes)──► CLOSED
//	HALF_OPEN ──(1 failure)──► OPEN
//
// While OPEN, CanExecute reports false until the recovery timeout has
// elapsed since the last recorded failure.
//
// # Rate Limiter
//
// The limiter keeps a sliding window of execution timestamps. Before
// each execution, timestamps older than the window are dropped; the
// execution is allowed iff the remaining count is below the maximum.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple
// goroutines.
package resilience
