package fluidra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signedToken builds a real HS256 token carrying only an exp claim.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return raw
}

// fakeExchanger hands out pre-built tokens and counts exchanges.
type fakeExchanger struct {
	tokens []string
	calls  int
	err    error
}

func (f *fakeExchanger) Exchange(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls
	if idx >= len(f.tokens) {
		idx = len(f.tokens) - 1
	}
	f.calls++
	return f.tokens[idx], nil
}

func TestProviderCachesUntilNearExpiry(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ex := &fakeExchanger{tokens: []string{
		signedToken(t, base.Add(time.Hour)),
		signedToken(t, base.Add(2*time.Hour)),
	}}

	clock := base
	p := NewRefreshingProvider(ex)
	p.now = func() time.Time { return clock }

	first, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if ex.calls != 1 {
		t.Fatalf("exchanges = %d, want 1", ex.calls)
	}

	// Well before expiry: cached.
	clock = base.Add(30 * time.Minute)
	again, _ := p.Token(context.Background())
	if again != first || ex.calls != 1 {
		t.Errorf("Token() re-exchanged early (calls=%d)", ex.calls)
	}

	// Inside the 5-minute lead: refreshed.
	clock = base.Add(56 * time.Minute)
	refreshed, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if refreshed == first || ex.calls != 2 {
		t.Errorf("Token() did not refresh inside the expiry lead (calls=%d)", ex.calls)
	}
}

func TestProviderInvalidateForcesExchange(t *testing.T) {
	base := time.Now()
	ex := &fakeExchanger{tokens: []string{signedToken(t, base.Add(time.Hour))}}
	p := NewRefreshingProvider(ex)

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	p.Invalidate()
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("Token() after Invalidate() error = %v", err)
	}
	if ex.calls != 2 {
		t.Errorf("exchanges = %d, want 2", ex.calls)
	}
}

func TestProviderExchangeFailureIsAuthError(t *testing.T) {
	ex := &fakeExchanger{err: errors.New("identity service down")}
	p := NewRefreshingProvider(ex)

	_, err := p.Token(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Errorf("Token() error = %v, want ErrAuth", err)
	}
}

func TestTokenExpiryRejectsGarbage(t *testing.T) {
	if _, err := tokenExpiry("not-a-jwt"); err == nil {
		t.Error("tokenExpiry(garbage) = nil error")
	}
}
