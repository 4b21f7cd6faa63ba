// Package creds resolves the delivery credential for a destination.
//
// A missing credential is a normal state, not an error: lookups return an
// explicit ok flag and callers defer their work until a token appears.
package creds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pocketchat/pocketchat/internal/client/kvstore"
)

// Provider resolves the bearer token for a destination host.
type Provider interface {
	// Token returns (token, true, nil) when a usable credential exists,
	// ("", false, nil) when none is stored or the stored one has expired.
	Token(ctx context.Context, host string) (string, bool, error)
}

// StoreProvider reads tokens from the key-value store under authToken:<host>.
// Tokens that parse as JWTs with an exp claim in the past are reported as
// absent, so callers never start a drain or sync that is guaranteed a 401.
type StoreProvider struct {
	store kvstore.Store
	now   func() time.Time
}

func NewStoreProvider(store kvstore.Store) *StoreProvider {
	return &StoreProvider{store: store, now: time.Now}
}

func (p *StoreProvider) Token(ctx context.Context, host string) (string, bool, error) {
	v, ok, err := p.store.Get(ctx, kvstore.AuthTokenKey(host))
	if err != nil {
		return "", false, fmt.Errorf("failed to read credential for %s: %w", host, err)
	}
	if !ok {
		return "", false, nil
	}
	token := strings.TrimSpace(string(v))
	if token == "" {
		return "", false, nil
	}
	if isExpiredJWT(token, p.now()) {
		return "", false, nil
	}
	return token, true, nil
}

// SetToken stores the credential for a destination.
func (p *StoreProvider) SetToken(ctx context.Context, host, token string) error {
	return p.store.Set(ctx, kvstore.AuthTokenKey(host), []byte(strings.TrimSpace(token)))
}

// ClearToken removes the credential for a destination.
func (p *StoreProvider) ClearToken(ctx context.Context, host string) error {
	return p.store.Delete(ctx, kvstore.AuthTokenKey(host))
}

// isExpiredJWT reports whether token is a JWT whose exp claim is in the past.
// Opaque (non-JWT) tokens and JWTs without exp are never considered expired;
// the signature is not verified, only the claims are inspected.
func isExpiredJWT(token string, now time.Time) bool {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
