// AngelaMos | 2026
// access.go

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

const capabilitiesKey contextKey = "capabilities"

const (
	msgAlreadyPro   = "Already a Pro member"
	msgCustomDenied = "Access denied by policy"
)

func (g *Guard) RequireFeature(feature entitlement.Feature) func(http.Handler) http.Handler {
	capability := string(feature)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			user, r := g.identify(r)

			d := g.resolver.CheckFeature(user, feature)
			if !g.enforce(w, r, "feature", capability, core.CodeFeatureAccessDenied, d, started) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireService gates a route on a human-readable service name matched
// against the role service lists. proService=true forces Pro gating; false
// does not lift it. A name that the caller's roles list only under pro is
// still Pro-only, matching what UserServices reports.
func (g *Guard) RequireService(name string, proService bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			user, r := g.identify(r)

			d := g.resolver.CheckService(user, name, proService)
			if !g.enforce(w, r, "service", name, core.CodeServiceAccessDenied, d, started) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) RequirePro(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		user, r := g.identify(r)

		if !user.Authenticated() {
			g.denyUnauthenticated(w, r, "pro", "", started)
			return
		}

		if !user.IsPro {
			g.deny(w, r, "pro", "", OutcomeDenyPro, started, http.StatusForbidden, core.Denial{
				Error:           entitlement.ReasonProRequired,
				Code:            core.CodeProRequired,
				UpgradeRequired: true,
				UpgradeURL:      g.upgradeURL,
			})
			return
		}

		recordDecision("pro", "", OutcomeAllow, started)
		next.ServeHTTP(w, r)
	})
}

// RequireUpgradeEligible guards the upgrade flow itself, rejecting callers
// who are already Pro.
func (g *Guard) RequireUpgradeEligible(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		user, r := g.identify(r)

		if !user.Authenticated() {
			g.denyUnauthenticated(w, r, "upgrade", "", started)
			return
		}

		if !g.resolver.CanUpgradeToPro(user) {
			g.deny(w, r, "upgrade", "", OutcomeDenyPro, started, http.StatusBadRequest, core.Denial{
				Error: msgAlreadyPro,
				Code:  core.CodeAlreadyPro,
			})
			return
		}

		recordDecision("upgrade", "", OutcomeAllow, started)
		next.ServeHTTP(w, r)
	})
}

// AddUserCapabilities never rejects. Anonymous requests pass through with
// no capabilities attached.
func (g *Guard) AddUserCapabilities(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, r := g.identify(r)

		if user.Authenticated() {
			caps := g.resolver.Capabilities(user)
			r = r.WithContext(context.WithValue(r.Context(), capabilitiesKey, &caps))
		}

		next.ServeHTTP(w, r)
	})
}

func GetCapabilities(ctx context.Context) *entitlement.Capabilities {
	if caps, ok := ctx.Value(capabilitiesKey).(*entitlement.Capabilities); ok {
		return caps
	}
	return nil
}

// CustomCheck is an extra predicate evaluated by Protect after the role and
// Pro checks pass.
type CustomCheck interface {
	Allow(user *identity.SessionUser, roles []identity.Role, isPro bool) bool
}

type CheckFunc func(user *identity.SessionUser, roles []identity.Role, isPro bool) bool

func (f CheckFunc) Allow(user *identity.SessionUser, roles []identity.Role, isPro bool) bool {
	return f(user, roles, isPro)
}

// Policy combines the generic guards. A nil Check means no custom check.
type Policy struct {
	Roles      []identity.Role
	RequirePro bool
	Check      CustomCheck
}

func (g *Guard) Protect(p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			user, r := g.identify(r)

			if !user.Authenticated() {
				g.denyUnauthenticated(w, r, "policy", "", started)
				return
			}

			if len(p.Roles) > 0 && !user.HasAnyRole(p.Roles...) {
				g.deny(w, r, "policy", "", OutcomeDenyRole, started, http.StatusForbidden, core.Denial{
					Error: entitlement.ReasonInsufficientRole,
					Code:  core.CodeInsufficientRole,
				})
				return
			}

			if p.RequirePro && !user.IsPro {
				g.deny(w, r, "policy", "", OutcomeDenyPro, started, http.StatusForbidden, core.Denial{
					Error:           entitlement.ReasonProRequired,
					Code:            core.CodeProRequired,
					UpgradeRequired: true,
					UpgradeURL:      g.upgradeURL,
				})
				return
			}

			if p.Check != nil && !p.Check.Allow(user, user.Roles, user.IsPro) {
				g.deny(w, r, "policy", "", OutcomeDenyCustom, started, http.StatusForbidden, core.Denial{
					Error: msgCustomDenied,
					Code:  core.CodeInsufficientRole,
				})
				return
			}

			recordDecision("policy", "", OutcomeAllow, started)
			next.ServeHTTP(w, r)
		})
	}
}

// enforce writes the response for a resolver decision and reports whether
// the request may continue.
func (g *Guard) enforce(
	w http.ResponseWriter,
	r *http.Request,
	guard, capability, code string,
	d entitlement.Decision,
	started time.Time,
) bool {
	switch {
	case d.HasAccess:
		recordDecision(guard, capability, OutcomeAllow, started)
		core.RecordAccessEvent(r.Context(), true, core.AccessEvent{
			Guard:      guard,
			Capability: capability,
		})
		return true

	case d.Reason == entitlement.ReasonAuthRequired:
		g.denyUnauthenticated(w, r, guard, capability, started)

	case d.ConfigError:
		EntitlementConfigErrorsTotal.WithLabelValues(capability).Inc()
		g.logger.Error("access check hit unmapped capability",
			"guard", guard,
			"capability", capability,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
		)
		g.deny(w, r, guard, capability, OutcomeConfigError, started, http.StatusInternalServerError, core.Denial{
			Error: entitlement.ReasonNotConfigured,
			Code:  core.CodeEntitlementMisconfig,
		})

	default:
		outcome := OutcomeDenyRole
		if d.UpgradeRequired {
			outcome = OutcomeDenyPro
		}
		g.deny(w, r, guard, capability, outcome, started, http.StatusForbidden, core.Denial{
			Error:           d.Reason,
			Code:            code,
			UpgradeRequired: d.UpgradeRequired,
			UpgradeURL:      g.upgradeURL,
		})
	}

	return false
}
