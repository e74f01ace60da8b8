package mqtt

import "errors"

// Sentinel errors for the broker client. The platform bridge and main
// check these with errors.Is() to decide between fail-fast (startup)
// and log-and-continue (steady state).
var (
	// ErrConnectionFailed is returned by Connect when the broker is
	// unreachable or rejects the session.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNotConnected is returned for operations attempted while the
	// client is disconnected. Device state publishes hit this during
	// broker outages; the bridge drops the update and relies on the
	// next poll cycle.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrPublishFailed wraps a publish that was accepted by the client
	// but not confirmed by the broker in time.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps a failed command-topic subscription.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps a failed unsubscribe.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0-2 before they reach
	// the broker.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
