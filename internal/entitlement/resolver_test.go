// AngelaMos | 2026
// resolver_test.go

package entitlement

import (
	"bytes"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	return NewResolver(Static{M: DefaultMatrix()}, nil)
}

func user(roles []identity.Role, pro bool) *identity.SessionUser {
	return &identity.SessionUser{
		ID:    "user-1",
		Email: "user@example.com",
		Roles: roles,
		IsPro: pro,
	}
}

func TestCheckFeature(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name    string
		user    *identity.SessionUser
		feature Feature
		want    Decision
	}{
		{
			name:    "wrong role is denied without upgrade",
			user:    user([]identity.Role{identity.RoleBuyer}, false),
			feature: FeatureAdvancedAnalytics,
			want: Decision{
				Reason:        ReasonInsufficientRole,
				ProFeature:    true,
				RequiredRoles: []identity.Role{identity.RoleSeller, identity.RoleAdmin},
			},
		},
		{
			name:    "right role without pro needs upgrade",
			user:    user([]identity.Role{identity.RoleSeller}, false),
			feature: FeatureAdvancedAnalytics,
			want: Decision{
				Reason:          ReasonProRequired,
				UpgradeRequired: true,
				ProFeature:      true,
			},
		},
		{
			name:    "right role with pro is allowed",
			user:    user([]identity.Role{identity.RoleSeller}, true),
			feature: FeatureAdvancedAnalytics,
			want:    Decision{HasAccess: true},
		},
		{
			name:    "wrong role with pro is still denied",
			user:    user([]identity.Role{identity.RoleBuyer}, true),
			feature: FeatureAdvancedAnalytics,
			want: Decision{
				Reason:        ReasonInsufficientRole,
				ProFeature:    true,
				RequiredRoles: []identity.Role{identity.RoleSeller, identity.RoleAdmin},
			},
		},
		{
			name:    "free feature needs no pro",
			user:    user([]identity.Role{identity.RoleFounder}, false),
			feature: FeatureDirectMessaging,
			want:    Decision{HasAccess: true},
		},
		{
			name:    "any held role is enough",
			user:    user([]identity.Role{identity.RoleBuyer, identity.RoleAdmin}, true),
			feature: FeatureAdvancedAnalytics,
			want:    Decision{HasAccess: true},
		},
		{
			name:    "anonymous",
			user:    nil,
			feature: FeatureDirectMessaging,
			want:    Decision{Reason: ReasonAuthRequired},
		},
		{
			name:    "empty id is anonymous",
			user:    &identity.SessionUser{Roles: []identity.Role{identity.RoleSeller}, IsPro: true},
			feature: FeatureAdvancedAnalytics,
			want:    Decision{Reason: ReasonAuthRequired},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.CheckFeature(tt.user, tt.feature)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CheckFeature() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCheckFeatureUnmappedIsConfigError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := NewResolver(Static{M: DefaultMatrix()}, logger)

	got := r.CheckFeature(user([]identity.Role{identity.RoleSuperAdmin}, true), Feature("teleportation"))
	if got.HasAccess {
		t.Fatal("unmapped feature granted")
	}
	if !got.ConfigError {
		t.Error("ConfigError = false, want true")
	}
	if got.Reason != ReasonNotConfigured {
		t.Errorf("Reason = %q, want %q", got.Reason, ReasonNotConfigured)
	}
	if got.UpgradeRequired {
		t.Error("unmapped feature must not suggest an upgrade")
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "teleportation") {
		t.Errorf("expected error log naming the feature, got %q", buf.String())
	}
}

func TestCheckFeatureShortCircuits(t *testing.T) {
	r := newTestResolver(t)

	anon := r.CheckFeature(nil, Feature("teleportation"))
	if anon.Reason != ReasonAuthRequired || anon.ConfigError {
		t.Errorf("auth must be checked before mapping, got %+v", anon)
	}

	roleDenied := r.CheckFeature(user([]identity.Role{identity.RoleBuyer}, false), FeatureCRMPipeline)
	if roleDenied.UpgradeRequired {
		t.Errorf("role check must run before tier check, got %+v", roleDenied)
	}
}

func TestCheckService(t *testing.T) {
	r := newTestResolver(t)

	tests := []struct {
		name       string
		user       *identity.SessionUser
		service    string
		proService bool
		wantAccess bool
		wantReason string
		wantUpg    bool
	}{
		{
			name:       "basic service for free seller",
			user:       user([]identity.Role{identity.RoleSeller}, false),
			service:    "Post 1 Listing",
			wantAccess: true,
		},
		{
			name:       "case insensitive substring",
			user:       user([]identity.Role{identity.RoleSeller}, false),
			service:    "post 1",
			wantAccess: true,
		},
		{
			name:       "pro-list service needs pro",
			user:       user([]identity.Role{identity.RoleSeller}, false),
			service:    "Multiple Listings",
			wantReason: ReasonProRequired,
			wantUpg:    true,
		},
		{
			name:       "pro-list service with pro",
			user:       user([]identity.Role{identity.RoleSeller}, true),
			service:    "Multiple Listings",
			wantAccess: true,
		},
		{
			name:       "explicit pro flag overrides basic listing",
			user:       user([]identity.Role{identity.RoleSeller}, false),
			service:    "Post 1 Listing",
			proService: true,
			wantReason: ReasonProRequired,
			wantUpg:    true,
		},
		{
			name:       "ambiguous substring admits every matching role",
			user:       user([]identity.Role{identity.RoleBuyer}, false),
			service:    "Listing",
			wantAccess: true,
		},
		{
			name:       "role not listed",
			user:       user([]identity.Role{identity.RoleBuyer}, true),
			service:    "CRM Pipeline",
			wantReason: ReasonInsufficientRole,
		},
		{
			name:       "unknown service",
			user:       user([]identity.Role{identity.RoleSuperAdmin}, true),
			service:    "Teleportation",
			wantReason: ReasonInsufficientRole,
		},
		{
			name:       "anonymous",
			user:       nil,
			service:    "Browse Listings",
			wantReason: ReasonAuthRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.CheckService(tt.user, tt.service, tt.proService)
			if got.HasAccess != tt.wantAccess {
				t.Errorf("HasAccess = %v, want %v (%+v)", got.HasAccess, tt.wantAccess, got)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
			if got.UpgradeRequired != tt.wantUpg {
				t.Errorf("UpgradeRequired = %v, want %v", got.UpgradeRequired, tt.wantUpg)
			}
		})
	}
}

func TestUserServices(t *testing.T) {
	r := newTestResolver(t)

	pro := r.UserServices(user([]identity.Role{identity.RoleMSMEOwner}, true))
	if !slices.Contains(pro.Basic, "Apply for Loans (basic form)") {
		t.Errorf("pro msme-owner basic = %v", pro.Basic)
	}
	if !slices.Contains(pro.Pro, "AI-based Business Valuation") {
		t.Errorf("pro msme-owner pro = %v", pro.Pro)
	}

	free := r.UserServices(user([]identity.Role{identity.RoleMSMEOwner}, false))
	if !slices.Contains(free.Basic, "Apply for Loans (basic form)") {
		t.Errorf("free msme-owner basic = %v", free.Basic)
	}
	if len(free.Pro) != 0 {
		t.Errorf("free msme-owner pro = %v, want empty", free.Pro)
	}

	anon := r.UserServices(nil)
	if anon.Basic == nil || anon.Pro == nil || len(anon.Basic)+len(anon.Pro) != 0 {
		t.Errorf("anonymous services = %+v, want empty non-nil lists", anon)
	}
}

func TestUserServicesDeduplicatesAcrossRoles(t *testing.T) {
	r := newTestResolver(t)

	got := r.UserServices(user([]identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin}, true))

	count := 0
	for _, name := range got.Basic {
		if name == "User Management" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("\"User Management\" appears %d times in %v", count, got.Basic)
	}
}

func TestUserFeatures(t *testing.T) {
	r := newTestResolver(t)

	free := r.UserFeatures(user([]identity.Role{identity.RoleSeller}, false))
	if !reflect.DeepEqual(free, []Feature{FeatureDirectMessaging}) {
		t.Errorf("free seller features = %v", free)
	}

	pro := r.UserFeatures(user([]identity.Role{identity.RoleSeller}, true))
	for _, want := range []Feature{
		FeatureAdvancedAnalytics,
		FeatureUnlimitedListings,
		FeatureFeaturedListings,
		FeatureBulkUpload,
		FeatureDirectMessaging,
	} {
		if !slices.Contains(pro, want) {
			t.Errorf("pro seller features missing %q: %v", want, pro)
		}
	}
	if slices.Contains(pro, FeatureCRMPipeline) {
		t.Error("pro seller must not get crm-pipeline")
	}

	if got := r.UserFeatures(nil); len(got) != 0 {
		t.Errorf("anonymous features = %v", got)
	}
}

func TestUpgradeRecommendationsAndCanUpgrade(t *testing.T) {
	r := newTestResolver(t)

	free := user([]identity.Role{identity.RoleBuyer, identity.RoleSeller}, false)
	recs := r.UpgradeRecommendations(free)
	for _, want := range []string{"Advanced Search Filters", "Multiple Listings"} {
		if !slices.Contains(recs, want) {
			t.Errorf("recommendations missing %q: %v", want, recs)
		}
	}
	n := 0
	for _, s := range recs {
		if s == "Priority Support" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("\"Priority Support\" appears %d times", n)
	}

	if !r.CanUpgradeToPro(free) {
		t.Error("free user should be able to upgrade")
	}
	if r.CanUpgradeToPro(user([]identity.Role{identity.RoleBuyer}, true)) {
		t.Error("pro user should not be able to upgrade")
	}
	if r.CanUpgradeToPro(nil) {
		t.Error("anonymous user should not be able to upgrade")
	}
}

func TestCapabilitiesMatchesIndividualQueries(t *testing.T) {
	r := newTestResolver(t)
	u := user([]identity.Role{identity.RoleInvestor}, true)

	caps := r.Capabilities(u)

	if !reflect.DeepEqual(caps.Services, r.UserServices(u)) {
		t.Errorf("Services = %+v", caps.Services)
	}
	if !reflect.DeepEqual(caps.Features, r.UserFeatures(u)) {
		t.Errorf("Features = %v", caps.Features)
	}
	if !reflect.DeepEqual(caps.Recommendations, r.UpgradeRecommendations(u)) {
		t.Errorf("Recommendations = %v", caps.Recommendations)
	}
	if caps.CanUpgrade {
		t.Error("CanUpgrade = true for pro user")
	}
}

func TestResolverIsDeterministic(t *testing.T) {
	r := newTestResolver(t)
	u := user([]identity.Role{identity.RoleAgent, identity.RoleFounder}, false)

	first := r.Capabilities(u)
	for range 50 {
		if got := r.Capabilities(u); !reflect.DeepEqual(got, first) {
			t.Fatalf("Capabilities() changed between calls: %+v vs %+v", got, first)
		}
	}
}

func TestResolverFollowsStoreSwap(t *testing.T) {
	store, err := NewStore(DefaultMatrix())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	r := NewResolver(store, nil)
	buyer := user([]identity.Role{identity.RoleBuyer}, true)

	if r.CheckFeature(buyer, FeatureAdvancedAnalytics).HasAccess {
		t.Fatal("buyer granted advanced-analytics under default matrix")
	}

	features := defaultFeatures()
	features[FeatureAdvancedAnalytics] = FeatureRule{
		AllowedRoles: []identity.Role{identity.RoleBuyer},
		ProOnly:      true,
	}
	old, err := store.Swap(NewMatrix(defaultRoleServices(), features))
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	if !r.CheckFeature(buyer, FeatureAdvancedAnalytics).HasAccess {
		t.Error("resolver did not observe swapped matrix")
	}

	rule, _ := old.FeatureRule(FeatureAdvancedAnalytics)
	if slices.Contains(rule.AllowedRoles, identity.RoleBuyer) {
		t.Error("previous matrix was modified by swap")
	}
}

func TestStoreRejectsInvalidMatrix(t *testing.T) {
	if _, err := NewStore(nil); err == nil {
		t.Error("NewStore(nil) error = nil")
	}
	if _, err := NewStore(NewMatrix(nil, nil)); err == nil {
		t.Error("NewStore(empty) error = nil")
	}

	store, err := NewStore(DefaultMatrix())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	before := store.Matrix()

	if _, err := store.Swap(NewMatrix(nil, nil)); err == nil {
		t.Error("Swap(invalid) error = nil")
	}
	if store.Matrix() != before {
		t.Error("invalid swap replaced the matrix")
	}
}

func TestStoreConcurrentReadsDuringSwap(t *testing.T) {
	store, err := NewStore(DefaultMatrix())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	r := NewResolver(store, nil)
	seller := user([]identity.Role{identity.RoleSeller}, true)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				caps := r.Capabilities(seller)
				if !slices.Contains(caps.Features, FeatureAdvancedAnalytics) {
					t.Error("seller lost advanced-analytics mid-swap")
					return
				}
			}
		}()
	}

	for range 20 {
		if _, err := store.Swap(DefaultMatrix()); err != nil {
			t.Errorf("Swap() error = %v", err)
		}
	}

	wg.Wait()
}
