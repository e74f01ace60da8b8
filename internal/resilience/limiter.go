package resilience

import (
	"sync"
	"time"
)

// Default rate limiter settings.
const (
	// DefaultMaxRequests is the maximum number of requests per window.
	DefaultMaxRequests = 30

	// DefaultWindow is the sliding window length.
	DefaultWindow = 60 * time.Second
)

// RateLimiter is a sliding-window rate limiter.
//
// It records the timestamp of every executed request; before each
// execution, timestamps that have left the window are discarded and the
// request is allowed iff the remaining count is below the maximum.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu         sync.Mutex
	timestamps []time.Time

	// now is injectable for tests.
	now func() time.Time
}

// NewRateLimiter creates a limiter with the given window parameters.
//
// Non-positive values fall back to the defaults.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		timestamps:  make([]time.Time, 0, maxRequests),
		now:         time.Now,
	}
}

// CanExecute reports whether a request is allowed within the current
// window. Expired timestamps are pruned as a side effect.
func (l *RateLimiter) CanExecute() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(l.now())
	return len(l.timestamps) < l.maxRequests
}

// RecordRequest records an execution timestamp.
func (l *RateLimiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = append(l.timestamps, l.now())
}

// WaitTime returns the duration until the oldest recorded timestamp
// exits the window, or zero if a request is currently allowed.
func (l *RateLimiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.timestamps) < l.maxRequests {
		return 0
	}

	wait := l.window - now.Sub(l.timestamps[0])
	if wait < 0 {
		return 0
	}
	return wait
}

// prune drops timestamps older than the window. Caller must hold mu.
func (l *RateLimiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.timestamps) && now.Sub(l.timestamps[cut]) > l.window {
		cut++
	}
	if cut > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[cut:]...)
	}
}
