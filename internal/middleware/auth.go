// AngelaMos | 2026
// auth.go

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

const identityResolvedKey contextKey = "identity_resolved"

// IdentityExtractor turns a request into a session user, or nil when no
// credential verifies. It must not fail the request.
type IdentityExtractor interface {
	Extract(r *http.Request) *identity.SessionUser
}

// Guard builds the access middleware for one service. Every guard extracts
// identity at most once per request and then asks the resolver.
type Guard struct {
	extractor  IdentityExtractor
	resolver   *entitlement.Resolver
	upgradeURL string
	logger     *slog.Logger
}

func NewGuard(
	extractor IdentityExtractor,
	resolver *entitlement.Resolver,
	upgradeURL string,
	logger *slog.Logger,
) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		extractor:  extractor,
		resolver:   resolver,
		upgradeURL: upgradeURL,
		logger:     logger,
	}
}

func (g *Guard) Resolver() *entitlement.Resolver {
	return g.resolver
}

func (g *Guard) UpgradeURL() string {
	return g.upgradeURL
}

// identify returns the caller and a request carrying it. Guards stacked on
// one route reuse the first extraction.
func (g *Guard) identify(r *http.Request) (*identity.SessionUser, *http.Request) {
	ctx := r.Context()
	if resolved, _ := ctx.Value(identityResolvedKey).(bool); resolved {
		return identity.FromContext(ctx), r
	}

	user := g.extractor.Extract(r)

	ctx = context.WithValue(ctx, identityResolvedKey, true)
	if user.Authenticated() {
		ctx = identity.WithUser(ctx, user)
	} else {
		user = nil
	}

	return user, r.WithContext(ctx)
}

func (g *Guard) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		user, r := g.identify(r)

		if !user.Authenticated() {
			g.denyUnauthenticated(w, r, "auth", "", started)
			return
		}

		recordDecision("auth", "", OutcomeAllow, started)
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, r = g.identify(r)
		next.ServeHTTP(w, r)
	})
}

// RequireRole passes when the caller holds any of roles.
func (g *Guard) RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			user, r := g.identify(r)

			if !user.Authenticated() {
				g.denyUnauthenticated(w, r, "role", "", started)
				return
			}

			if !user.HasAnyRole(roles...) {
				g.deny(w, r, "role", "", OutcomeDenyRole, started, http.StatusForbidden, core.Denial{
					Error: entitlement.ReasonInsufficientRole,
					Code:  core.CodeInsufficientRole,
				})
				return
			}

			recordDecision("role", "", OutcomeAllow, started)
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) denyUnauthenticated(
	w http.ResponseWriter,
	r *http.Request,
	guard, capability string,
	started time.Time,
) {
	g.deny(w, r, guard, capability, OutcomeDenyAuth, started, http.StatusUnauthorized, core.Denial{
		Error: entitlement.ReasonAuthRequired,
		Code:  core.CodeAuthRequired,
	})
}

func (g *Guard) deny(
	w http.ResponseWriter,
	r *http.Request,
	guard, capability, outcome string,
	started time.Time,
	status int,
	d core.Denial,
) {
	recordDecision(guard, capability, outcome, started)

	core.RecordAccessEvent(r.Context(), false, core.AccessEvent{
		Guard:           guard,
		Capability:      capability,
		Code:            d.Code,
		UpgradeRequired: d.UpgradeRequired,
	})

	core.WriteDenial(w, status, d)
}

func GetUser(ctx context.Context) *identity.SessionUser {
	return identity.FromContext(ctx)
}

func IsAuthenticated(ctx context.Context) bool {
	return identity.FromContext(ctx).Authenticated()
}
