package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"valve-gateway/internal/config"
)

// ErrInvalidToken is returned for an unknown or empty token
var ErrInvalidToken = errors.New("invalid token")

// Principal is the identity behind a token
type Principal struct {
	Name string `json:"username"`
	Role string `json:"role"`
}

// HasRole reports whether the principal holds one of roles
func (p Principal) HasRole(roles ...string) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// TokenVerifier resolves an opaque credential to a principal
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}

type entry struct {
	token     []byte
	principal Principal
}

// StaticVerifier checks tokens against the configured table
type StaticVerifier struct {
	entries []entry
}

// NewStaticVerifier builds a verifier from auth.tokens
func NewStaticVerifier(tokens []config.TokenConfig) *StaticVerifier {
	v := &StaticVerifier{entries: make([]entry, 0, len(tokens))}
	for _, t := range tokens {
		v.entries = append(v.entries, entry{
			token:     []byte(t.Token),
			principal: Principal{Name: t.Principal, Role: t.Role},
		})
	}
	return v
}

// Verify compares in constant time against every entry
func (v *StaticVerifier) Verify(_ context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrInvalidToken
	}

	candidate := []byte(token)
	var (
		found Principal
		ok    bool
	)
	for _, e := range v.entries {
		if subtle.ConstantTimeCompare(e.token, candidate) == 1 {
			found, ok = e.principal, true
		}
	}
	if !ok {
		return Principal{}, ErrInvalidToken
	}
	return found, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
