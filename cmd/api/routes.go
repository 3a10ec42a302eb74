// AngelaMos | 2026
// routes.go

package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
	"github.com/carterperez-dev/marketplace-access/internal/middleware"
)

type serviceResponse struct {
	Service string `json:"service"`
	UserID  string `json:"userId"`
}

// registerServiceRoutes mounts the marketplace endpoints this service
// fronts. Each one is gated the way the owning service gates it.
func registerServiceRoutes(r chi.Router, guard *middleware.Guard) {
	r.Route("/services", func(r chi.Router) {
		r.With(guard.RequireService("Browse Listings", false)).
			Get("/listings", serve("browse-listings"))
		r.With(guard.RequireFeature(entitlement.FeatureBulkUpload)).
			Post("/listings/bulk", serve("bulk-upload"))
		r.With(guard.RequireFeature(entitlement.FeatureFeaturedListings)).
			Post("/listings/{listingID}/feature", serve("featured-listings"))

		r.With(guard.RequireFeature(entitlement.FeatureAdvancedAnalytics)).
			Get("/analytics", serve("advanced-analytics"))
		r.With(guard.RequireFeature(entitlement.FeatureExportReports)).
			Get("/reports/export", serve("export-reports"))

		r.With(guard.RequireFeature(entitlement.FeatureAIValuation)).
			Post("/valuation", serve("ai-valuation"))
		r.With(guard.RequireFeature(entitlement.FeatureLoanInsights)).
			Get("/loans/insights", serve("loan-insights"))
		r.With(guard.RequireService("Apply for Loans", false)).
			Post("/loans/apply", serve("loan-application"))

		r.With(guard.RequireFeature(entitlement.FeatureInvestorInsights)).
			Get("/investors/insights", serve("investor-insights"))
		r.With(guard.Protect(middleware.Policy{
			Roles:      []identity.Role{identity.RoleInvestor, identity.RoleFounder},
			RequirePro: true,
		})).Get("/deal-room", serve("deal-room"))

		r.With(guard.RequireFeature(entitlement.FeatureCRMPipeline)).
			Get("/crm/pipeline", serve("crm-pipeline"))

		r.With(guard.RequireFeature(entitlement.FeatureDirectMessaging)).
			Post("/messages", serve("direct-messaging"))
		r.With(guard.RequirePro).
			Post("/support/priority", serve("priority-support"))

		r.With(guard.RequireAuth, guard.AddUserCapabilities).
			Get("/dashboard", dashboard)
	})
}

func serve(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := middleware.GetUser(r.Context())
		core.OK(w, serviceResponse{Service: service, UserID: u.ID})
	}
}

func dashboard(w http.ResponseWriter, r *http.Request) {
	core.OK(w, middleware.GetCapabilities(r.Context()))
}
