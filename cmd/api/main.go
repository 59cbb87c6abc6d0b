// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Pixveil HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis (when the Redis token store is selected).
//  5. Run database migrations (idempotent).
//  6. Wire the secure delivery pipeline.
//  7. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/pixveil/internal/api"
	"github.com/taibuivan/pixveil/internal/gallery"
	"github.com/taibuivan/pixveil/internal/platform/config"
	"github.com/taibuivan/pixveil/internal/platform/constants"
	"github.com/taibuivan/pixveil/internal/platform/migration"
	pgstore "github.com/taibuivan/pixveil/internal/platform/postgres"
	redisstore "github.com/taibuivan/pixveil/internal/platform/redis"
	"github.com/taibuivan/pixveil/internal/platform/sec"
	"github.com/taibuivan/pixveil/internal/protection"
	"github.com/taibuivan/pixveil/pkg/uuidv7"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "pixveil"))
	slog.SetDefault(log)

	log.Info("[Pixveil] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "pixveil"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("token_store", cfg.TokenStore),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Token Store ────────────────────────────────────────────────────
	// Redis is only dialed when the Redis-backed store is selected.
	var tokenStore protection.TokenStore
	var checkCache func() error

	if cfg.TokenStore == config.TokenStoreRedis {
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()

		tokenStore = protection.NewRedisTokenStore(rdb)
		checkCache = func() error {
			return redisstore.Ping(context.Background(), rdb)
		}
	} else {
		tokenStore = protection.NewMemoryTokenStore()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Operator Auth ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTPrivKeyPath, cfg.JWTPubKeyPath, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: checkCache,
		CheckStorage: func() error {
			_, err := os.Stat(cfg.PhotoStorageRoot)
			return err
		},
	}, log)

	// ── 8. Delivery Pipeline Wiring ───────────────────────────────────────
	galleryRepository := gallery.NewRepository(pool)
	pathResolver := gallery.NewPathResolver(cfg.PhotoStorageRoot)

	accessTokens, err := protection.NewTokenService(tokenStore, cfg.ServerSecret)
	must(log, err, "initialize access token service")

	accessLogger := protection.NewAccessLogger(protection.NewLogStore(pool), log, uuidv7.New)
	defer accessLogger.Wait()

	deliveryService := protection.NewDeliveryService(
		galleryRepository,
		pathResolver,
		accessTokens,
		protection.NewTransformer(),
		accessLogger,
		log,
	)
	protectionHandler := protection.NewHandler(deliveryService)

	// ── 9. HTTP Server ────────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Protection: protectionHandler,
	}

	server := api.NewServer(startupCtx, cfg, log, jwtSvc, handlers)

	// ── 10. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
