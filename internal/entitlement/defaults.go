// AngelaMos | 2026
// defaults.go

package entitlement

import (
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

// DefaultMatrix returns the matrix shipped with the build.
func DefaultMatrix() *Matrix {
	return NewMatrix(defaultRoleServices(), defaultFeatures())
}

func defaultRoleServices() map[identity.Role]RoleServices {
	return map[identity.Role]RoleServices{
		identity.RoleBuyer: {
			Basic: []string{
				"Browse Listings",
				"Contact Sellers",
				"Save Favorites",
			},
			Pro: []string{
				"Advanced Search Filters",
				"Early Access to Listings",
				"Due Diligence Reports",
				"Priority Support",
			},
		},
		identity.RoleSeller: {
			Basic: []string{
				"Post 1 Listing",
				"Basic Listing Analytics",
				"Receive Inquiries",
			},
			Pro: []string{
				"Multiple Listings",
				"Featured Listings",
				"Advanced Analytics",
				"Bulk Upload",
				"Priority Support",
			},
		},
		identity.RoleInvestor: {
			Basic: []string{
				"Browse Investment Opportunities",
				"Connect with Founders",
			},
			Pro: []string{
				"Investor Insights Dashboard",
				"Deal Room Access",
				"AI-based Business Valuation",
				"Priority Support",
			},
		},
		identity.RoleAgent: {
			Basic: []string{
				"Manage Up to 5 Clients",
				"Post Listings for Clients",
			},
			Pro: []string{
				"Unlimited Clients",
				"CRM Pipeline",
				"Featured Listings",
				"Commission Tracking",
			},
		},
		identity.RoleMSMEOwner: {
			Basic: []string{
				"Create MSME Profile",
				"Apply for Loans (basic form)",
				"Access Government Schemes",
			},
			Pro: []string{
				"AI-based Business Valuation",
				"Loan Eligibility Insights",
				"Export Reports",
				"Priority Support",
			},
		},
		identity.RoleFounder: {
			Basic: []string{
				"Create Startup Profile",
				"Pitch to Investors",
			},
			Pro: []string{
				"Investor Matching",
				"Pitch Deck Review",
				"Deal Room Access",
				"Priority Support",
			},
		},
		identity.RoleAdmin: {
			Basic: []string{
				"User Management",
				"Listing Moderation",
				"View Reports",
			},
			Pro: []string{
				"Advanced Analytics",
				"Export Reports",
			},
		},
		identity.RoleSuperAdmin: {
			Basic: []string{
				"User Management",
				"Listing Moderation",
				"View Reports",
				"Role Management",
				"System Configuration",
			},
			Pro: []string{
				"Advanced Analytics",
				"Export Reports",
				"Audit Logs",
			},
		},
	}
}

func defaultFeatures() map[Feature]FeatureRule {
	members := []identity.Role{
		identity.RoleBuyer,
		identity.RoleSeller,
		identity.RoleInvestor,
		identity.RoleAgent,
		identity.RoleMSMEOwner,
		identity.RoleFounder,
	}

	return map[Feature]FeatureRule{
		FeatureAdvancedAnalytics: {
			AllowedRoles: []identity.Role{identity.RoleSeller, identity.RoleAdmin},
			ProOnly:      true,
		},
		FeaturePrioritySupport: {
			AllowedRoles: members,
			ProOnly:      true,
		},
		FeatureAIValuation: {
			AllowedRoles: []identity.Role{identity.RoleMSMEOwner, identity.RoleInvestor},
			ProOnly:      true,
		},
		FeatureCRMPipeline: {
			AllowedRoles: []identity.Role{identity.RoleAgent},
			ProOnly:      true,
		},
		FeatureUnlimitedListings: {
			AllowedRoles: []identity.Role{identity.RoleSeller, identity.RoleAgent},
			ProOnly:      true,
		},
		FeatureFeaturedListings: {
			AllowedRoles: []identity.Role{identity.RoleSeller, identity.RoleAgent},
			ProOnly:      true,
		},
		FeatureBulkUpload: {
			AllowedRoles: []identity.Role{identity.RoleSeller, identity.RoleAdmin},
			ProOnly:      true,
		},
		FeatureExportReports: {
			AllowedRoles: []identity.Role{
				identity.RoleMSMEOwner,
				identity.RoleAdmin,
				identity.RoleSuperAdmin,
			},
			ProOnly: true,
		},
		FeatureInvestorInsights: {
			AllowedRoles: []identity.Role{identity.RoleInvestor},
			ProOnly:      true,
		},
		FeatureDealRoom: {
			AllowedRoles: []identity.Role{identity.RoleInvestor, identity.RoleFounder},
			ProOnly:      true,
		},
		FeatureLoanInsights: {
			AllowedRoles: []identity.Role{identity.RoleMSMEOwner},
			ProOnly:      true,
		},
		FeatureDirectMessaging: {
			AllowedRoles: members,
			ProOnly:      false,
		},
		FeatureAPIAccess: {
			AllowedRoles: []identity.Role{identity.RoleAdmin, identity.RoleSuperAdmin},
			ProOnly:      false,
		},
	}
}
