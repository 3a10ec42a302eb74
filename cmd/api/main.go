// AngelaMos | 2026
// main.go

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carterperez-dev/marketplace-access/internal/admin"
	"github.com/carterperez-dev/marketplace-access/internal/auth"
	"github.com/carterperez-dev/marketplace-access/internal/config"
	"github.com/carterperez-dev/marketplace-access/internal/core"
	"github.com/carterperez-dev/marketplace-access/internal/entitlement"
	"github.com/carterperez-dev/marketplace-access/internal/health"
	"github.com/carterperez-dev/marketplace-access/internal/identity"
	"github.com/carterperez-dev/marketplace-access/internal/middleware"
	"github.com/carterperez-dev/marketplace-access/internal/server"
	"github.com/carterperez-dev/marketplace-access/internal/user"
)

const (
	drainDelay         = 5 * time.Second
	tokenPurgeInterval = time.Hour
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

//nolint:funlen // bootstrap code is inherently verbose
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	telemetry, err := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
	if err != nil {
		logger.Warn("failed to initialize telemetry, tracing disabled", "error", err)
		telemetry, _ = core.NewTelemetry(ctx, config.OtelConfig{}, cfg.App) //nolint:errcheck // noop provider
	} else if cfg.Otel.Enabled {
		logger.Info("OpenTelemetry tracer initialized",
			"endpoint", cfg.Otel.Endpoint,
		)
	}

	matrix, err := loadMatrix(cfg.Entitlement)
	if err != nil {
		return err
	}
	store, err := entitlement.NewStore(matrix)
	if err != nil {
		return err
	}
	logger.Info("entitlement matrix loaded",
		"source", matrixSource(cfg.Entitlement),
		"features", len(entitlement.AllFeatures()),
	)

	resolver := entitlement.NewResolver(store, logger)

	tokens, err := auth.NewTokenManager(cfg.Auth)
	if err != nil {
		return err
	}
	extractor := auth.NewExtractor(tokens, cfg.Auth.CookieName)
	guard := middleware.NewGuard(extractor, resolver, cfg.Entitlement.UpgradeURL, logger)

	var (
		db          *core.Database
		authSvc     *auth.Service
		userHandler *user.Handler
		dbChecker   health.Checker
	)

	adminCfg := admin.HandlerConfig{
		Store:      store,
		MatrixPath: cfg.Entitlement.MatrixPath,
		Logger:     logger,
	}

	if cfg.HasDatabase() {
		db, err = core.NewDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		logger.Info("database connected",
			"max_open_conns", cfg.Database.MaxOpenConns,
			"max_idle_conns", cfg.Database.MaxIdleConns,
		)

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("database schema applied")
		}

		userSvc := user.NewService(user.NewRepository(db.DB), logger)
		userHandler = user.NewHandler(userSvc)

		authSvc = auth.NewService(
			auth.NewRepository(db.DB),
			tokens,
			userSvc,
			cfg.Auth.PasswordCost,
			logger,
		)

		dbChecker = db
		adminCfg.DBStats = db.Stats
		adminCfg.DBPing = db.Ping

		go purgeExpiredTokens(ctx, authSvc, logger)
	} else {
		logger.Info("no database configured, serving token verification and capability queries only")
	}

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	var redisChecker health.Checker
	if redis != nil {
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
		redisChecker = redis
		adminCfg.RedisStats = redis.PoolStats
		adminCfg.RedisPing = redis.Ping
	} else {
		logger.Info("no redis configured, rate limits are per process")
	}

	healthHandler := health.NewHandler(store, dbChecker, redisChecker)
	authHandler := auth.NewHandler(authSvc, auth.CookieOptions{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.IsProduction(),
	})
	accessHandler := entitlement.NewHandler(resolver, cfg.Entitlement.UpgradeURL)
	adminHandler := admin.NewHandler(adminCfg)

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing(telemetry.Tracer))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	limiter := middleware.NewTieredLimiter(redis.RawClient(), cfg.RateLimit, guard, logger)
	staffOnly := guard.RequireRole(identity.RoleAdmin, identity.RoleSuperAdmin)
	superAdminOnly := guard.RequireRole(identity.RoleSuperAdmin)

	router.Route("/v1", func(r chi.Router) {
		r.Use(limiter.Handler)

		authHandler.RegisterRoutes(r, guard.RequireAuth)
		accessHandler.RegisterRoutes(r, guard.RequireAuth, guard.RequireUpgradeEligible)

		if userHandler != nil {
			userHandler.RegisterRoutes(r, guard.RequireAuth)
			userHandler.RegisterAdminRoutes(r, staffOnly, superAdminOnly)
		}
		adminHandler.RegisterRoutes(r, staffOnly, superAdminOnly)

		registerServiceRoutes(r, guard)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+drainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, drainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	limiter.Close()

	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("application stopped")
	return nil
}

// loadMatrix prefers the configured file and falls back to the built-in
// matrix. Either way an incomplete matrix stops startup.
func loadMatrix(cfg config.EntitlementConfig) (*entitlement.Matrix, error) {
	if cfg.MatrixPath != "" {
		return entitlement.LoadFile(cfg.MatrixPath)
	}

	m := entitlement.DefaultMatrix()
	m.MustValidate()
	return m, nil
}

func matrixSource(cfg config.EntitlementConfig) string {
	if cfg.MatrixPath != "" {
		return cfg.MatrixPath
	}
	return "builtin"
}

func purgeExpiredTokens(ctx context.Context, svc *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(tokenPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired refresh tokens", "count", n)
			}
		}
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
