// AngelaMos | 2026
// handler.go

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
)

type Checker interface {
	Ping(ctx context.Context) error
}

// Handler serves liveness and readiness. Backends left nil are optional
// and not checked; the entitlement matrix always is.
type Handler struct {
	checks   map[string]Checker
	matrix   entitlement.Source
	ready    atomic.Bool
	shutdown atomic.Bool
}

func NewHandler(matrix entitlement.Source, db, redis Checker) *Handler {
	h := &Handler{
		checks: map[string]Checker{},
		matrix: matrix,
	}
	if db != nil {
		h.checks["database"] = db
	}
	if redis != nil {
		h.checks["redis"] = redis
	}
	h.ready.Store(true)
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/livez", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	if h.shutdown.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "shutting_down",
		})
		return
	}

	h.writeStatus(w, http.StatusOK, StatusResponse{
		Status: "ok",
	})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "shutting_down",
		})
		return
	}

	if !h.ready.Load() {
		h.writeStatus(w, http.StatusServiceUnavailable, StatusResponse{
			Status: "not_ready",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := h.runHealthChecks(ctx)

	allHealthy := true
	for _, check := range checks {
		if !check.Healthy {
			allHealthy = false
			break
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	h.writeStatus(w, statusCode, ReadinessResponse{
		Status: status,
		Checks: checks,
	})
}

func (h *Handler) runHealthChecks(ctx context.Context) []HealthCheck {
	checks := make([]HealthCheck, 0, len(h.checks)+1)
	checks = append(checks, h.checkMatrix())

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for name, checker := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := ping(ctx, name, checker)
			mu.Lock()
			checks = append(checks, c)
			mu.Unlock()
		}()
	}

	wg.Wait()
	return checks
}

func (h *Handler) checkMatrix() HealthCheck {
	check := HealthCheck{Name: "entitlement_matrix", Healthy: true}

	if h.matrix == nil || h.matrix.Matrix() == nil {
		check.Healthy = false
		check.Message = "no matrix loaded"
		return check
	}

	if res := h.matrix.Matrix().Validate(); !res.Valid {
		check.Healthy = false
		check.Message = res.Errors[0]
	}

	return check
}

func ping(ctx context.Context, name string, c Checker) HealthCheck {
	check := HealthCheck{Name: name, Healthy: true}

	start := time.Now()
	err := c.Ping(ctx)
	check.Latency = time.Since(start).String()

	if err != nil {
		check.Healthy = false
		check.Message = "ping failed"
	}

	return check
}

func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Handler) SetShutdown(shutdown bool) {
	h.shutdown.Store(shutdown)
}

func (h *Handler) writeStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	//nolint:errcheck // best-effort response
	_ = json.NewEncoder(w).Encode(data)
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ReadinessResponse struct {
	Status string        `json:"status"`
	Checks []HealthCheck `json:"checks"`
}

type HealthCheck struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}
