// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
	"github.com/carterperez-dev/marketplace-access/internal/middleware"
)

type Handler struct {
	store      *entitlement.Store
	matrixPath string
	load       func(path string) (*entitlement.Matrix, error)
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	redisPing  func(ctx context.Context) error
	dbPing     func(ctx context.Context) error
	logger     *slog.Logger

	reloadMu   sync.Mutex
	reloadedAt atomic.Int64
}

type HandlerConfig struct {
	Store      *entitlement.Store
	MatrixPath string
	// Load defaults to entitlement.LoadFile.
	Load       func(path string) (*entitlement.Matrix, error)
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	RedisPing  func(ctx context.Context) error
	DBPing     func(ctx context.Context) error
	Logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Load == nil {
		cfg.Load = entitlement.LoadFile
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		store:      cfg.Store,
		matrixPath: cfg.MatrixPath,
		load:       cfg.Load,
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		redisPing:  cfg.RedisPing,
		dbPing:     cfg.DBPing,
		logger:     cfg.Logger,
	}
	h.reloadedAt.Store(time.Now().UnixNano())
	return h
}

// RegisterRoutes mounts runtime stats for staff and matrix administration
// for super-admins.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	staffOnly, superAdminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(staffOnly)

			r.Get("/stats", h.GetSystemStats)
			r.Get("/stats/runtime", h.GetRuntimeStats)
		})

		r.Group(func(r chi.Router) {
			r.Use(superAdminOnly)

			r.Get("/matrix", h.GetMatrix)
			r.Get("/matrix/validate", h.ValidateMatrix)
			r.Post("/matrix/reload", h.ReloadMatrix)
		})
	})
}

func (h *Handler) GetSystemStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := SystemStatsResponse{
		Runtime: readRuntimeStats(),
		Matrix:  h.matrixStatus(),
	}

	if h.dbPing != nil {
		response.Database = &DatabaseStatus{
			Healthy: h.dbPing(ctx) == nil,
			Stats:   h.getDBStats(),
		}
	}

	if h.redisPing != nil {
		response.Redis = &RedisStatus{
			Healthy: h.redisPing(ctx) == nil,
			Stats:   h.getRedisStats(),
		}
	}

	core.OK(w, response)
}

func (h *Handler) GetRuntimeStats(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, readRuntimeStats())
}

// GetMatrix returns the live matrix as JSON, or in the file format with
// ?format=yaml so it can be edited and reloaded.
func (h *Handler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	m := h.store.Matrix()

	if r.URL.Query().Get("format") == "yaml" {
		body, err := m.YAML()
		if err != nil {
			core.InternalServerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // best-effort response
		_, _ = w.Write(body)
		return
	}

	core.OK(w, m.Document())
}

// ValidateMatrix reports on the live matrix and, when a file is configured,
// on what a reload would install.
func (h *Handler) ValidateMatrix(w http.ResponseWriter, _ *http.Request) {
	response := ValidateResponse{
		Current: h.store.Matrix().Validate(),
	}

	if h.matrixPath != "" {
		file := &FileValidation{Path: h.matrixPath}
		if m, err := h.load(h.matrixPath); err != nil {
			file.Valid = false
			file.Errors = []string{err.Error()}
		} else {
			res := m.Validate()
			file.Valid = res.Valid
			file.Errors = res.Errors
		}
		response.File = file
	}

	core.OK(w, response)
}

func (h *Handler) ReloadMatrix(w http.ResponseWriter, r *http.Request) {
	if h.matrixPath == "" {
		core.JSONError(w, core.NewAppError(
			core.ErrInvalidInput,
			"no matrix file configured, the built-in matrix is in use",
			http.StatusConflict,
			"MATRIX_NOT_RELOADABLE",
		))
		return
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	m, err := h.load(h.matrixPath)
	if err == nil {
		_, err = h.store.Swap(m)
	}
	if err != nil {
		middleware.RecordMatrixReload(false)
		h.logger.Error("entitlement matrix reload rejected",
			"path", h.matrixPath,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
		core.JSONError(w, core.NewAppError(
			core.ErrMisconfigured,
			err.Error(),
			http.StatusUnprocessableEntity,
			"MATRIX_INVALID",
		))
		return
	}

	h.reloadedAt.Store(time.Now().UnixNano())
	middleware.RecordMatrixReload(true)

	actor := ""
	if u := middleware.GetUser(r.Context()); u != nil {
		actor = u.ID
	}
	h.logger.Info("entitlement matrix reloaded",
		"path", h.matrixPath,
		"actor", actor,
	)

	core.OK(w, h.matrixStatus())
}

func (h *Handler) matrixStatus() MatrixStatus {
	m := h.store.Matrix()
	doc := m.Document()

	return MatrixStatus{
		Source:   h.source(),
		Valid:    m.Validate().Valid,
		Roles:    len(doc.Roles),
		Features: len(doc.Features),
		LoadedAt: time.Unix(0, h.reloadedAt.Load()).UTC(),
	}
}

func (h *Handler) source() string {
	if h.matrixPath == "" {
		return "builtin"
	}
	return h.matrixPath
}

func readRuntimeStats() RuntimeStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return RuntimeStats{
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		MemAlloc:     memStats.Alloc,
		MemSys:       memStats.Sys,
		NumGC:        memStats.NumGC,
	}
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	if stats == nil {
		return nil
	}
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}
