// AngelaMos | 2026
// metrics.go

package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeAllow       = "allow"
	OutcomeDenyAuth    = "deny_auth"
	OutcomeDenyRole    = "deny_role"
	OutcomeDenyPro     = "deny_pro"
	OutcomeDenyCustom  = "deny_custom"
	OutcomeConfigError = "config_error"
)

var (
	// AccessDecisionsTotal counts guard outcomes. The capability label is a
	// feature id or the configured service name, never user input.
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_access_decisions_total",
			Help: "Access guard decisions by guard, capability and outcome",
		},
		[]string{"guard", "capability", "outcome"},
	)

	AccessDecisionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marketplace_access_decision_duration_seconds",
			Help:    "Time spent extracting identity and resolving one guard",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
		[]string{"guard"},
	)

	EntitlementConfigErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_entitlement_config_errors_total",
			Help: "Runtime lookups of features missing from the entitlement matrix",
		},
		[]string{"feature"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_rate_limited_total",
			Help: "Requests rejected by the tiered rate limiter",
		},
		[]string{"tier"},
	)

	MatrixReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketplace_matrix_reloads_total",
			Help: "Entitlement matrix reload attempts by result",
		},
		[]string{"result"},
	)
)

func recordDecision(guard, capability, outcome string, started time.Time) {
	AccessDecisionsTotal.WithLabelValues(guard, capability, outcome).Inc()
	AccessDecisionDuration.WithLabelValues(guard).Observe(time.Since(started).Seconds())
}

func RecordMatrixReload(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	MatrixReloadsTotal.WithLabelValues(result).Inc()
}
