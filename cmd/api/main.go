// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Veriscore HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis (only when the distributed nonce store is selected).
//  5. Run database migrations (idempotent).
//  6. Wire the token service, nonce store, and domain services.
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

	redislib "github.com/redis/go-redis/v9"

	"github.com/taibuivan/veriscore/internal/api"
	"github.com/taibuivan/veriscore/internal/issuers/auth"
	"github.com/taibuivan/veriscore/internal/issuers/scoring"
	"github.com/taibuivan/veriscore/internal/platform/config"
	"github.com/taibuivan/veriscore/internal/platform/constants"
	"github.com/taibuivan/veriscore/internal/platform/migration"
	pgstore "github.com/taibuivan/veriscore/internal/platform/postgres"
	redisstore "github.com/taibuivan/veriscore/internal/platform/redis"
	"github.com/taibuivan/veriscore/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "veriscore"))
	slog.SetDefault(log)

	log.Info("[Veriscore] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "veriscore"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("nonce_backend", cfg.NonceStoreBackend),
		slog.String("scoring_profile", cfg.ScoringProfile),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Lifetime context for background workers (nonce sweeper, rate limiter).
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis (optional) ───────────────────────────────────────────────
	var rdb *redislib.Client
	if cfg.NonceStoreBackend == "redis" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	tokenService, err := sec.NewTokenService(sec.TokenServiceOptions{
		AccessSecret:       []byte(cfg.JWTSecretAccess),
		RefreshSecret:      []byte(cfg.JWTSecretRefresh),
		AccessTTL:          cfg.AccessTokenTTL,
		RefreshTTL:         cfg.RefreshTokenTTL,
		IPBinding:          sec.IPBindingMode(cfg.IPBindingMode),
		FingerprintBinding: cfg.FingerprintBinding,
	})
	must(log, err, "initialize token service")

	// ── 7. Nonce Store ────────────────────────────────────────────────────
	var nonceStore auth.NonceStore
	if cfg.NonceStoreBackend == "redis" {
		nonceStore = auth.NewRedisNonceStore(rdb, cfg.NonceTTL)
	} else {
		memoryStore := auth.NewMemoryNonceStore(cfg.NonceTTL, cfg.NonceSweepInterval)
		memoryStore.StartSweeper(appCtx)
		nonceStore = memoryStore
	}

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	healthDeps := api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
	}
	if rdb != nil {
		healthDeps.CheckCache = func() error {
			return redisstore.Ping(context.Background(), rdb)
		}
	}
	liveness, readiness := api.NewHealthHandlers(healthDeps, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	issuerRepository := auth.NewIssuerRepository(pool)
	accountRepository := auth.NewAccountRepository(pool)
	tokenRepository := auth.NewTokenRepository(pool)
	lifecycle := auth.NewTokenLifecycle(tokenService, tokenRepository)
	lifecycle.StartSweeper(appCtx, cfg.TokenSweepInterval)

	providerVerifier := auth.NewProviderVerifier(auth.ProviderVerifierOptions{
		TelegramBotToken: cfg.TelegramBotToken,
	})

	scoreRepository := scoring.NewScoreRepository(pool)
	flagRepository := scoring.NewFlagRepository(pool)
	launchRepository := scoring.NewLaunchRepository(pool)

	var activity scoring.ActivitySource
	if cfg.GithubAccessToken != "" {
		activity = scoring.NewGithubClient(cfg.GithubAccessToken)
	}

	scoringEngine := scoring.NewEngine(scoring.DefaultPolicy(scoring.Profile(cfg.ScoringProfile)))
	must(log, scoringEngine.Policy().Validate(), "validate scoring policy")

	scoringService := scoring.NewService(
		scoreRepository,
		flagRepository,
		launchRepository,
		accountRepository,
		issuerRepository,
		activity,
		scoringEngine,
	)
	scoreNotifier := scoring.NewNotifier(scoringService)

	authService := auth.NewService(
		issuerRepository,
		accountRepository,
		nonceStore,
		lifecycle,
		scoreNotifier,
		scoreNotifier,
		auth.Options{
			ClientDomain:    cfg.ClientDomain,
			SignatureMaxAge: cfg.SignatureMaxAge,
		},
	)
	socialService := auth.NewSocialService(
		issuerRepository,
		accountRepository,
		lifecycle,
		providerVerifier,
		scoreNotifier,
		authService,
	)

	authHandler := auth.NewHandler(authService, socialService)
	scoringHandler := scoring.NewHandler(scoringService)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Scoring:   scoringHandler,
	}

	server := api.NewServer(appCtx, cfg, log, tokenService, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
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
