package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/chw/forms/internal/config"
	"github.com/chw/forms/internal/domain/forms"
	"github.com/chw/forms/internal/platform/auth"
	"github.com/chw/forms/internal/platform/db"
	"github.com/chw/forms/internal/platform/logging"
	"github.com/chw/forms/internal/platform/middleware"
	"github.com/chw/forms/internal/platform/telemetry"
)

// routes registers domain handlers on the versioned API group.
type routes interface {
	RegisterRoutes(api *echo.Group)
}

type serverDeps struct {
	health  echo.HandlerFunc
	metrics *telemetry.Provider
	gauges  []telemetry.Gauge
	routes  []routes
}

// newEcho assembles the HTTP server: global middleware, authentication, the
// public health endpoints, the admin-only /metrics endpoint and the
// rate-limited /api/v1 group.
func newEcho(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	if deps.metrics != nil {
		e.Use(deps.metrics.Middleware())
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept-Language", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Language", middleware.RequestIDHeader},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", deps.health)
	if deps.metrics != nil {
		e.GET("/metrics", deps.metrics.Handler(deps.gauges...), auth.RequireRole(auth.RoleAdmin))
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	if cfg.RequestTimeout > 0 {
		apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	for _, h := range deps.routes {
		h.RegisterRoutes(apiV1)
	}
	return e
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, closer := logging.New(os.Stdout, logging.Options{
		Level:      cfg.Level(),
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	metrics := telemetry.NewProvider("forms-server")
	svc := forms.NewService(
		forms.NewTemplateRepoPG(pool),
		forms.NewResponseRepoPG(pool),
		pool,
		cfg.DefaultLanguage,
		logger,
	)
	svc.SetRecorder(metrics)

	e := newEcho(cfg, logger, serverDeps{
		health:  db.PoolHealthHandler(pool),
		metrics: metrics,
		gauges:  poolGauges(pool),
		routes:  []routes{forms.NewHandler(svc)},
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func poolGauges(pool *pgxpool.Pool) []telemetry.Gauge {
	return []telemetry.Gauge{
		{
			Name:  "db_pool_acquired_connections",
			Help:  "Database connections in use.",
			Value: func() int64 { return int64(pool.Stat().AcquiredConns()) },
		},
		{
			Name:  "db_pool_idle_connections",
			Help:  "Idle database connections.",
			Value: func() int64 { return int64(pool.Stat().IdleConns()) },
		},
	}
}
