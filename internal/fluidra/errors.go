package fluidra

import "errors"

var (
	// ErrAuth indicates the credential was rejected even after a
	// forced refresh. The caller should fail the whole cycle: every
	// other request would fail the same way.
	ErrAuth = errors.New("fluidra: authentication failed")

	// ErrConnection indicates a transport-level failure (DNS, TCP,
	// TLS, timeout) or a server-side 5xx.
	ErrConnection = errors.New("fluidra: connection failed")

	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("fluidra: not found")

	// ErrBadResponse indicates the server answered with a payload the
	// gateway could not decode.
	ErrBadResponse = errors.New("fluidra: malformed response")
)
