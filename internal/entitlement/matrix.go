// AngelaMos | 2026
// matrix.go

// Package entitlement holds the role/feature matrix and the pure access
// resolver built on top of it. A Matrix is immutable once constructed;
// replacing it at runtime goes through Store.
package entitlement

import (
	"fmt"
	"slices"
	"strings"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type Feature string

const (
	FeatureAdvancedAnalytics Feature = "advanced-analytics"
	FeaturePrioritySupport   Feature = "priority-support"
	FeatureAIValuation       Feature = "ai-valuation"
	FeatureCRMPipeline       Feature = "crm-pipeline"
	FeatureUnlimitedListings Feature = "unlimited-listings"
	FeatureFeaturedListings  Feature = "featured-listings"
	FeatureBulkUpload        Feature = "bulk-upload"
	FeatureExportReports     Feature = "export-reports"
	FeatureInvestorInsights  Feature = "investor-insights"
	FeatureDealRoom          Feature = "deal-room"
	FeatureLoanInsights      Feature = "loan-insights"
	FeatureDirectMessaging   Feature = "direct-messaging"
	FeatureAPIAccess         Feature = "api-access"
)

var allFeatures = []Feature{
	FeatureAdvancedAnalytics,
	FeaturePrioritySupport,
	FeatureAIValuation,
	FeatureCRMPipeline,
	FeatureUnlimitedListings,
	FeatureFeaturedListings,
	FeatureBulkUpload,
	FeatureExportReports,
	FeatureInvestorInsights,
	FeatureDealRoom,
	FeatureLoanInsights,
	FeatureDirectMessaging,
	FeatureAPIAccess,
}

func AllFeatures() []Feature {
	return slices.Clone(allFeatures)
}

func (f Feature) Valid() bool {
	return slices.Contains(allFeatures, f)
}

func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if !f.Valid() {
		return "", fmt.Errorf("unknown feature %q", s)
	}
	return f, nil
}

type FeatureRule struct {
	AllowedRoles []identity.Role
	ProOnly      bool
}

// RoleServices lists the human-readable capabilities of one role. Pro holds
// additions only; a Pro user of the role gets Basic plus Pro.
type RoleServices struct {
	Basic []string
	Pro   []string
}

type serviceEntry struct {
	name  string
	lower string
	role  identity.Role
	pro   bool
}

type Matrix struct {
	roleServices map[identity.Role]RoleServices
	features     map[Feature]FeatureRule
	services     []serviceEntry
}

// NewMatrix copies its inputs, so later changes by the caller never reach
// the returned Matrix. It does not validate; see Validate.
func NewMatrix(
	roleServices map[identity.Role]RoleServices,
	features map[Feature]FeatureRule,
) *Matrix {
	m := &Matrix{
		roleServices: make(map[identity.Role]RoleServices, len(roleServices)),
		features:     make(map[Feature]FeatureRule, len(features)),
	}

	for role, rs := range roleServices {
		m.roleServices[role] = RoleServices{
			Basic: slices.Clone(rs.Basic),
			Pro:   slices.Clone(rs.Pro),
		}
	}

	for f, rule := range features {
		m.features[f] = FeatureRule{
			AllowedRoles: slices.Clone(rule.AllowedRoles),
			ProOnly:      rule.ProOnly,
		}
	}

	m.services = buildServiceIndex(m.roleServices)

	return m
}

// buildServiceIndex flattens every role's lists once, in role enumeration
// order followed by any unknown roles, so lookups scan names only.
func buildServiceIndex(rs map[identity.Role]RoleServices) []serviceEntry {
	roles := identity.AllRoles()
	for role := range rs {
		if !role.Valid() {
			roles = append(roles, role)
		}
	}

	var entries []serviceEntry
	for _, role := range roles {
		svc, ok := rs[role]
		if !ok {
			continue
		}
		for _, name := range svc.Basic {
			entries = append(entries, serviceEntry{name: name, lower: strings.ToLower(name), role: role})
		}
		for _, name := range svc.Pro {
			entries = append(entries, serviceEntry{name: name, lower: strings.ToLower(name), role: role, pro: true})
		}
	}
	return entries
}

func (m *Matrix) FeatureRule(f Feature) (FeatureRule, bool) {
	rule, ok := m.features[f]
	if !ok {
		return FeatureRule{}, false
	}
	return FeatureRule{
		AllowedRoles: slices.Clone(rule.AllowedRoles),
		ProOnly:      rule.ProOnly,
	}, true
}

func (m *Matrix) RoleServices(role identity.Role) (RoleServices, bool) {
	rs, ok := m.roleServices[role]
	if !ok {
		return RoleServices{}, false
	}
	return RoleServices{Basic: slices.Clone(rs.Basic), Pro: slices.Clone(rs.Pro)}, true
}

// ServiceMatch is one role whose lists contain the queried name.
type ServiceMatch struct {
	Role    identity.Role
	InBasic bool
}

// MatchService returns every role with a service containing name as a
// case-insensitive substring. A role appears once; InBasic is set when any
// of its matches is in the basic list.
func (m *Matrix) MatchService(name string) []ServiceMatch {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}

	var matches []ServiceMatch
	for _, e := range m.services {
		if !strings.Contains(e.lower, needle) {
			continue
		}
		idx := slices.IndexFunc(matches, func(sm ServiceMatch) bool { return sm.Role == e.role })
		if idx < 0 {
			matches = append(matches, ServiceMatch{Role: e.role, InBasic: !e.pro})
			continue
		}
		if !e.pro {
			matches[idx].InBasic = true
		}
	}
	return matches
}

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

func (m *Matrix) Validate() ValidationResult {
	errs := []string{}

	for _, role := range identity.AllRoles() {
		if _, ok := m.roleServices[role]; !ok {
			errs = append(errs, fmt.Sprintf("role %q has no service entry", role))
		}
	}

	for role, rs := range m.roleServices {
		if !role.Valid() {
			errs = append(errs, fmt.Sprintf("service entry for unknown role %q", role))
			continue
		}
		for _, name := range rs.Pro {
			if slices.Contains(rs.Basic, name) {
				errs = append(errs, fmt.Sprintf("role %q lists %q in both basic and pro", role, name))
			}
		}
	}

	for _, f := range allFeatures {
		rule, ok := m.features[f]
		if !ok {
			errs = append(errs, fmt.Sprintf("feature %q has no mapping", f))
			continue
		}
		if len(rule.AllowedRoles) == 0 {
			errs = append(errs, fmt.Sprintf("feature %q allows no roles", f))
		}
		for _, role := range rule.AllowedRoles {
			if !role.Valid() {
				errs = append(errs, fmt.Sprintf("feature %q allows unknown role %q", f, role))
			}
		}
	}

	for f := range m.features {
		if !f.Valid() {
			errs = append(errs, fmt.Sprintf("mapping for unknown feature %q", f))
		}
	}

	slices.Sort(errs)

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// MustValidate panics on an invalid matrix. Startup only.
func (m *Matrix) MustValidate() {
	if res := m.Validate(); !res.Valid {
		panic(fmt.Sprintf("entitlement matrix invalid: %s", strings.Join(res.Errors, "; ")))
	}
}

func (m *Matrix) ValidateErr() error {
	res := m.Validate()
	if res.Valid {
		return nil
	}
	return fmt.Errorf("entitlement matrix invalid: %s", strings.Join(res.Errors, "; "))
}
