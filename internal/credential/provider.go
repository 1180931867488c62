// Package credential stores the member's session token and hands it to
// the network components on demand.
package credential

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider supplies the current bearer token. The boolean is false when
// the member is signed out or the stored token has expired. Callers ask
// on every request so a renewed token is picked up without a restart.
type Provider interface {
	Token(ctx context.Context) (string, bool)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (string, bool)

// Token calls f.
func (f ProviderFunc) Token(ctx context.Context) (string, bool) {
	return f(ctx)
}

// Static always returns the same token. An empty Static is signed out.
type Static string

// Token returns the token when it is non-empty.
func (s Static) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

// KeyringProvider reads the session token from a Ring on every call and
// treats expired tokens as absent.
type KeyringProvider struct {
	ring *Ring
	key  string
	now  func() time.Time
}

// NewKeyringProvider returns a provider for the session token entry.
func NewKeyringProvider(ring *Ring) *KeyringProvider {
	return &KeyringProvider{
		ring: ring,
		key:  SessionTokenKey,
		now:  time.Now,
	}
}

// Token implements Provider.
func (p *KeyringProvider) Token(context.Context) (string, bool) {
	token, err := p.ring.Get(p.key)
	if err != nil || token == "" {
		return "", false
	}
	if Expired(token, p.now()) {
		return "", false
	}
	return token, true
}

// Expired reports whether token is unusable at now. The signature is not
// verified here; only the server can do that. Tokens that are not JWTs or
// carry no expiry are considered expired.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}

	return !exp.Time.After(now)
}
