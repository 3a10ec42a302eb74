// AngelaMos | 2026
// handler.go

package entitlement

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

type Handler struct {
	resolver   *Resolver
	upgradeURL string
}

func NewHandler(resolver *Resolver, upgradeURL string) *Handler {
	return &Handler{resolver: resolver, upgradeURL: upgradeURL}
}

// RegisterRoutes mounts the capability queries. upgradeEligible guards the
// upgrade endpoint so current Pro users are turned away.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, upgradeEligible func(http.Handler) http.Handler,
) {
	r.Route("/access", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/capabilities", h.GetCapabilities)
		r.Get("/features", h.ListFeatures)
		r.Get("/features/{feature}", h.CheckFeature)
		r.Get("/services", h.CheckService)
		r.With(upgradeEligible).Get("/upgrade", h.GetUpgrade)
	})
}

func (h *Handler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	core.OK(w, h.resolver.Capabilities(user))
}

type FeatureDecision struct {
	Feature  Feature  `json:"feature"`
	Decision Decision `json:"decision"`
}

func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())

	out := make([]FeatureDecision, 0, len(allFeatures))
	for _, f := range allFeatures {
		out = append(out, FeatureDecision{
			Feature:  f,
			Decision: h.resolver.CheckFeature(user, f),
		})
	}

	core.OK(w, out)
}

func (h *Handler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		core.NotFound(w, "feature")
		return
	}

	user := identity.FromContext(r.Context())
	core.OK(w, FeatureDecision{
		Feature:  f,
		Decision: h.resolver.CheckFeature(user, f),
	})
}

type ServiceDecision struct {
	Service  string   `json:"service"`
	Decision Decision `json:"decision"`
}

func (h *Handler) CheckService(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		core.BadRequest(w, "name is required")
		return
	}

	pro := false
	if raw := r.URL.Query().Get("pro"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			core.BadRequest(w, "pro must be a boolean")
			return
		}
		pro = parsed
	}

	user := identity.FromContext(r.Context())
	core.OK(w, ServiceDecision{
		Service:  name,
		Decision: h.resolver.CheckService(user, name, pro),
	})
}

type UpgradeResponse struct {
	Recommendations []string `json:"recommendations"`
	UpgradeURL      string   `json:"upgradeUrl"`
}

func (h *Handler) GetUpgrade(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	core.OK(w, UpgradeResponse{
		Recommendations: h.resolver.UpgradeRecommendations(user),
		UpgradeURL:      h.upgradeURL,
	})
}
