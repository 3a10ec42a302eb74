// AngelaMos | 2026
// resolver.go

package entitlement

import (
	"log/slog"
	"slices"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

const (
	ReasonAuthRequired     = "Authentication required"
	ReasonNotConfigured    = "Feature not configured"
	ReasonInsufficientRole = "Insufficient role permissions"
	ReasonProRequired      = "Pro subscription required"
)

// Decision is the result of one check. UpgradeRequired is only ever set by
// the tier check, which runs after the role check.
type Decision struct {
	HasAccess       bool            `json:"hasAccess"`
	Reason          string          `json:"reason,omitempty"`
	UpgradeRequired bool            `json:"upgradeRequired,omitempty"`
	ProFeature      bool            `json:"proFeature,omitempty"`
	RequiredRoles   []identity.Role `json:"requiredRoles,omitempty"`
	ConfigError     bool            `json:"-"`
}

type Services struct {
	Basic []string `json:"basic"`
	Pro   []string `json:"pro"`
}

type Capabilities struct {
	Services        Services  `json:"services"`
	Features        []Feature `json:"features"`
	Recommendations []string  `json:"recommendations"`
	CanUpgrade      bool      `json:"canUpgrade"`
}

// Resolver answers access questions from (identity, capability, matrix)
// alone. Every method reads one matrix snapshot and does no I/O.
type Resolver struct {
	source Source
	logger *slog.Logger
}

func NewResolver(source Source, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{source: source, logger: logger}
}

func (r *Resolver) CheckFeature(u *identity.SessionUser, f Feature) Decision {
	return r.checkFeature(r.source.Matrix(), u, f, true)
}

func (r *Resolver) checkFeature(
	m *Matrix,
	u *identity.SessionUser,
	f Feature,
	logDrift bool,
) Decision {
	if !u.Authenticated() {
		return Decision{Reason: ReasonAuthRequired}
	}

	rule, ok := m.FeatureRule(f)
	if !ok {
		if logDrift {
			r.logger.Error("entitlement matrix has no mapping for feature",
				"feature", string(f),
				"user_id", u.ID,
			)
		}
		return Decision{Reason: ReasonNotConfigured, ConfigError: true}
	}

	if !u.HasAnyRole(rule.AllowedRoles...) {
		return Decision{
			Reason:        ReasonInsufficientRole,
			ProFeature:    rule.ProOnly,
			RequiredRoles: rule.AllowedRoles,
		}
	}

	if rule.ProOnly && !u.IsPro {
		return Decision{
			Reason:          ReasonProRequired,
			UpgradeRequired: true,
			ProFeature:      true,
		}
	}

	return Decision{HasAccess: true}
}

// CheckService resolves a human-readable service name. Eligible roles are
// those whose basic or pro list contains name as a case-insensitive
// substring. The service is Pro-only when proService is set, or when none
// of the caller's eligible roles lists it under basic.
func (r *Resolver) CheckService(
	u *identity.SessionUser,
	name string,
	proService bool,
) Decision {
	if !u.Authenticated() {
		return Decision{Reason: ReasonAuthRequired}
	}

	matches := r.source.Matrix().MatchService(name)

	required := make([]identity.Role, 0, len(matches))
	held := false
	inBasic := false
	for _, sm := range matches {
		required = append(required, sm.Role)
		if u.HasRole(sm.Role) {
			held = true
			inBasic = inBasic || sm.InBasic
		}
	}

	proOnly := proService || !inBasic

	if !held {
		return Decision{
			Reason:        ReasonInsufficientRole,
			ProFeature:    proService,
			RequiredRoles: required,
		}
	}

	if proOnly && !u.IsPro {
		return Decision{
			Reason:          ReasonProRequired,
			UpgradeRequired: true,
			ProFeature:      true,
		}
	}

	return Decision{HasAccess: true}
}

func (r *Resolver) UserServices(u *identity.SessionUser) Services {
	return userServices(r.source.Matrix(), u)
}

func userServices(m *Matrix, u *identity.SessionUser) Services {
	out := Services{Basic: []string{}, Pro: []string{}}
	if !u.Authenticated() {
		return out
	}

	for _, role := range u.Roles {
		rs, ok := m.RoleServices(role)
		if !ok {
			continue
		}
		out.Basic = appendUnique(out.Basic, rs.Basic...)
		if u.IsPro {
			out.Pro = appendUnique(out.Pro, rs.Pro...)
		}
	}

	return out
}

// UserFeatures lists, in enumeration order, every feature the caller is
// allowed to use right now.
func (r *Resolver) UserFeatures(u *identity.SessionUser) []Feature {
	return userFeatures(r, r.source.Matrix(), u)
}

func userFeatures(r *Resolver, m *Matrix, u *identity.SessionUser) []Feature {
	out := []Feature{}
	for _, f := range allFeatures {
		if r.checkFeature(m, u, f, false).HasAccess {
			out = append(out, f)
		}
	}
	return out
}

// UpgradeRecommendations is upsell copy only and carries no authorization weight.
func (r *Resolver) UpgradeRecommendations(u *identity.SessionUser) []string {
	return upgradeRecommendations(r.source.Matrix(), u)
}

func upgradeRecommendations(m *Matrix, u *identity.SessionUser) []string {
	out := []string{}
	if !u.Authenticated() {
		return out
	}

	for _, role := range u.Roles {
		if rs, ok := m.RoleServices(role); ok {
			out = appendUnique(out, rs.Pro...)
		}
	}
	return out
}

func (r *Resolver) CanUpgradeToPro(u *identity.SessionUser) bool {
	return u.Authenticated() && !u.IsPro
}

// Capabilities computes all derived queries against a single snapshot.
func (r *Resolver) Capabilities(u *identity.SessionUser) Capabilities {
	m := r.source.Matrix()

	return Capabilities{
		Services:        userServices(m, u),
		Features:        userFeatures(r, m, u),
		Recommendations: upgradeRecommendations(m, u),
		CanUpgrade:      r.CanUpgradeToPro(u),
	}
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(dst, item) {
			dst = append(dst, item)
		}
	}
	return dst
}
