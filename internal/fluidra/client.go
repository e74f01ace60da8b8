package fluidra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/poolsync/poolsync-core/internal/codec"
	"github.com/poolsync/poolsync-core/internal/resilience"
)

// DefaultBaseURL is the production vendor API endpoint.
const DefaultBaseURL = "https://api.fluidra-emea.com"

const defaultRequestTimeout = 30 * time.Second

// Logger defines the logging interface used by the Gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Gateway is the HTTP client for the vendor cloud API.
//
// All public methods are thread-safe.
type Gateway struct {
	baseURL string
	http    *http.Client
	creds   CredentialProvider
	breaker *resilience.CircuitBreaker
	limiter *resilience.RateLimiter
	logger  Logger

	// cache holds the last known component record per device, updated
	// on reads and on successful writes.
	cacheMu sync.RWMutex
	cache   map[string]map[int]codec.Record
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBaseURL overrides the API endpoint (tests, regional hosts).
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.http = c }
}

// WithLogger sets the gateway logger.
func WithLogger(l Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway using the given credential provider and
// shared resilience primitives.
func NewGateway(creds CredentialProvider, breaker *resilience.CircuitBreaker, limiter *resilience.RateLimiter, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		creds:   creds,
		breaker: breaker,
		limiter: limiter,
		logger:  noopLogger{},
		cache:   make(map[string]map[int]codec.Record),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// do runs one resilience-guarded, authenticated request and decodes
// the JSON response into out (when out is non-nil).
//
// A 401/403 invalidates the credential and retries exactly once with a
// fresh token. Transport failures and 5xx responses count against the
// circuit breaker; auth failures and 404s do not.
func (g *Gateway) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !g.breaker.CanExecute() {
		return fmt.Errorf("fluidra: %s %s rejected: %w", method, path, resilience.ErrCircuitOpen)
	}
	if !g.limiter.CanExecute() {
		return fmt.Errorf("fluidra: %s %s throttled (retry in %s): %w",
			method, path, g.limiter.WaitTime().Round(time.Second), resilience.ErrRateLimited)
	}
	g.limiter.RecordRequest()

	refreshed := false
	for {
		token, err := g.creds.Token(ctx)
		if err != nil {
			return err
		}

		status, payload, err := g.send(ctx, method, path, query, body, token)
		if err != nil {
			g.breaker.RecordFailure()
			return fmt.Errorf("%w: %s %s: %w", ErrConnection, method, path, err)
		}

		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if refreshed {
				return fmt.Errorf("%w: %s %s returned %d after refresh", ErrAuth, method, path, status)
			}
			g.logger.Debug("credential rejected, refreshing", "method", method, "path", path, "status", status)
			g.creds.Invalidate()
			refreshed = true
			continue

		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)

		case status >= http.StatusInternalServerError:
			g.breaker.RecordFailure()
			return fmt.Errorf("%w: %s %s returned %d", ErrConnection, method, path, status)

		case status >= http.StatusBadRequest:
			return fmt.Errorf("fluidra: %s %s returned unexpected status %d", method, path, status)
		}

		g.breaker.RecordSuccess()

		if out != nil {
			if err := json.Unmarshal(payload, out); err != nil {
				return fmt.Errorf("%w: %s %s: %w", ErrBadResponse, method, path, err)
			}
		}
		return nil
	}
}

// send performs a single HTTP exchange and returns the status code and
// response body.
func (g *Gateway) send(ctx context.Context, method, path string, query url.Values, body any, token string) (int, []byte, error) {
	u := g.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, payload, nil
}

// cacheRecord stores a component record in the gateway-local cache.
func (g *Gateway) cacheRecord(deviceID string, componentID int, rec codec.Record) {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()

	if g.cache[deviceID] == nil {
		g.cache[deviceID] = make(map[int]codec.Record)
	}
	g.cache[deviceID][componentID] = rec
}

// CachedComponents returns a copy of the last known component records
// for a device.
func (g *Gateway) CachedComponents(deviceID string) map[int]codec.Record {
	g.cacheMu.RLock()
	defer g.cacheMu.RUnlock()

	records, ok := g.cache[deviceID]
	if !ok {
		return nil
	}
	out := make(map[int]codec.Record, len(records))
	for id, rec := range records {
		out[id] = rec
	}
	return out
}
