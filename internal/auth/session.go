// AngelaMos | 2026
// session.go

package auth

import (
	"net/http"
	"strings"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

const DefaultCookieName = "session"

// Extractor rebuilds the caller's identity from the request alone. It never
// touches the database or the network.
type Extractor struct {
	tokens     *TokenManager
	cookieName string
}

func NewExtractor(tokens *TokenManager, cookieName string) *Extractor {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Extractor{tokens: tokens, cookieName: cookieName}
}

// Extract tries the bearer header, then the session cookie, then an
// identity an upstream gateway already placed on the context. The first
// source that verifies wins; nil means anonymous.
func (e *Extractor) Extract(r *http.Request) *identity.SessionUser {
	if token := BearerToken(r); token != "" {
		if claims := e.tokens.VerifyToken(token); claims != nil {
			return claims.SessionUser()
		}
	}

	if c, err := r.Cookie(e.cookieName); err == nil && c.Value != "" {
		if claims := e.tokens.VerifyToken(c.Value); claims != nil {
			return claims.SessionUser()
		}
	}

	if u := identity.FromContext(r.Context()); u.Authenticated() {
		return u
	}

	return nil
}

func (e *Extractor) CookieName() string {
	return e.cookieName
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
