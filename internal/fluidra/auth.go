package fluidra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshLead is how long before the token's exp claim a refresh is
// forced. Five minutes keeps long-running requests from straddling the
// expiry.
const refreshLead = 5 * time.Minute

// CredentialProvider supplies bearer tokens for the vendor API.
//
// Token returns a credential valid for at least the near future.
// Invalidate discards the cached credential so the next Token call
// fetches a fresh one; the gateway calls it after a 401/403.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// TokenExchanger performs the opaque identity exchange with the vendor
// identity service and returns a raw access token. Implementations own
// the exchange mechanics; this package only caches the result.
type TokenExchanger interface {
	Exchange(ctx context.Context) (string, error)
}

// RefreshingProvider caches an access token and re-exchanges it when
// it approaches expiry. Expiry is read from the token's exp claim with
// an unverified parse: the server, not this client, verifies the
// signature.
//
// Safe for concurrent use.
type RefreshingProvider struct {
	exchanger TokenExchanger

	mu      sync.Mutex
	token   string
	expires time.Time

	now func() time.Time
}

// NewRefreshingProvider creates a provider that fetches tokens through
// the given exchanger.
func NewRefreshingProvider(exchanger TokenExchanger) *RefreshingProvider {
	return &RefreshingProvider{
		exchanger: exchanger,
		now:       time.Now,
	}
}

// Token returns the cached credential, refreshing it when within
// refreshLead of expiry or after an Invalidate.
func (p *RefreshingProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.expires.Add(-refreshLead)) {
		return p.token, nil
	}

	raw, err := p.exchanger.Exchange(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	expires, err := tokenExpiry(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}

	p.token = raw
	p.expires = expires
	return p.token, nil
}

// Invalidate discards the cached credential.
func (p *RefreshingProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expires = time.Time{}
}

// tokenExpiry extracts the exp claim from a raw JWT without verifying
// the signature.
func tokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("parsing access token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return exp.Time, nil
}
