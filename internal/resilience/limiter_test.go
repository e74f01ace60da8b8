package resilience

import (
	"testing"
	"time"
)

// ─── Rate Limiter ──────────────────────────────────────────────────

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	l := NewRateLimiter(30, 60*time.Second)

	for i := 0; i < 29; i++ {
		l.RecordRequest()
	}
	if !l.CanExecute() {
		t.Error("CanExecute() = false with 29 of 30 requests recorded")
	}
}

func TestRateLimiterBlocksAtLimit(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(30, 60*time.Second)
	l.now = clock.Now

	for i := 0; i < 30; i++ {
		l.RecordRequest()
	}
	if l.CanExecute() {
		t.Error("CanExecute() = true with 30 of 30 requests recorded")
	}
}

func TestRateLimiterRecoversAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(30, 60*time.Second)
	l.now = clock.Now

	for i := 0; i < 30; i++ {
		l.RecordRequest()
	}
	if l.CanExecute() {
		t.Fatal("CanExecute() = true at limit")
	}

	clock.Advance(61 * time.Second)
	if !l.CanExecute() {
		t.Error("CanExecute() = false after window elapsed")
	}
}

func TestRateLimiterWaitTime(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(2, 60*time.Second)
	l.now = clock.Now

	if got := l.WaitTime(); got != 0 {
		t.Errorf("WaitTime() = %v for empty limiter, want 0", got)
	}

	l.RecordRequest()
	clock.Advance(10 * time.Second)
	l.RecordRequest()

	// Oldest timestamp is 10s old; it exits the window in 50s.
	if got := l.WaitTime(); got != 50*time.Second {
		t.Errorf("WaitTime() = %v, want %v", got, 50*time.Second)
	}

	clock.Advance(51 * time.Second)
	if got := l.WaitTime(); got != 0 {
		t.Errorf("WaitTime() = %v after oldest expired, want 0", got)
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewRateLimiter(3, 60*time.Second)
	l.now = clock.Now

	l.RecordRequest()
	clock.Advance(30 * time.Second)
	l.RecordRequest()
	l.RecordRequest()

	if l.CanExecute() {
		t.Fatal("CanExecute() = true at limit")
	}

	// After 31 more seconds only the first request has expired,
	// freeing exactly one slot.
	clock.Advance(31 * time.Second)
	if !l.CanExecute() {
		t.Error("CanExecute() = false after first request left window")
	}
	l.RecordRequest()
	if l.CanExecute() {
		t.Error("CanExecute() = true after refilling the freed slot")
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)

	if l.maxRequests != DefaultMaxRequests {
		t.Errorf("maxRequests = %d, want %d", l.maxRequests, DefaultMaxRequests)
	}
	if l.window != DefaultWindow {
		t.Errorf("window = %v, want %v", l.window, DefaultWindow)
	}
}
