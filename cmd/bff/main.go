// Package main is the entry point for the workspace BFF server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fieldline/workspace-bff/internal/config"
	"github.com/fieldline/workspace-bff/internal/google"
	"github.com/fieldline/workspace-bff/internal/idempotency"
	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/ratelimit"
	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/internal/schema"
	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/internal/transport"
	"github.com/fieldline/workspace-bff/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "workspace-bff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load the published action schema.
	sch, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		logger.Error("schema load failed", zap.Error(err))
		return 1
	}

	// Step 5: Build the Google service adapters.
	tokens := google.StaticTokenProvider{Token: os.Getenv(cfg.Google.StaticAccessTokenEnv)}
	provider := google.NewProvider(tokens, metrics)

	mailSvc := google.NewMailAPI(provider)
	calendarSvc := google.NewCalendarAPI(provider)
	tasksSvc := google.NewTasksAPI(provider)
	contactsSvc := google.NewContactsSheet(provider, cfg.Google.ContactsSpreadsheetID, cfg.Google.ContactsSheetName)

	// Step 6: Snapshot store and aggregate cost gate.
	snapshots := shape.NewSnapshotStore(cfg.Snapshot.TTL)
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go snapshots.Run(bgCtx, cfg.Snapshot.SweepInterval)

	gate := ratelimit.New(ratelimit.Config{
		Rate:          rate.Limit(cfg.RateLimit.PerUserRate),
		Burst:         cfg.RateLimit.PerUserBurst,
		AggregateCost: cfg.RateLimit.AggregateCost,
	})

	deps := rpc.Deps{
		Snapshots:     snapshots,
		Gate:          gate,
		AggregateCost: cfg.RateLimit.AggregateCost,
		Metrics:       metrics,
	}

	// Step 7: Idempotency store for the action endpoints.
	idemStore, idemChecker, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)
	defer idemCloser()

	// Step 8: Authentication.
	authenticate, err := buildAuthenticator(cfg.Identity, logger)
	if err != nil {
		logger.Error("authenticator initialization failed", zap.Error(err))
		return 1
	}

	// Step 9: Build HTTP router.
	readiness := observability.ReadinessChecks{
		SchemaLoaded:     func() bool { return len(sch.Raw()) > 0 },
		IdempotencyStore: idemChecker,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		Schema:       sch,
		Authenticate: authenticate,
		Mail:         rpc.NewMail(mailSvc, deps),
		Calendar:     rpc.NewCalendar(calendarSvc, deps),
		Contacts:     rpc.NewContacts(contactsSvc, deps),
		Tasks:        rpc.NewTasks(tasksSvc, deps),
		Actions: &transport.ActionHandlers{
			Contacts: contactsSvc,
			Tasks:    tasksSvc,
			Idem:     idemStore,
			IdemTTL:  cfg.Idempotency.DefaultTTL,
			Logger:   logger,
			Metrics:  metrics,
		},
		Snapshots: snapshots,
		Readiness: readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 10: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("identity_mode", cfg.Identity.Mode),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// healthCheckFunc adapts a closure to observability.HealthChecker.
type healthCheckFunc func(ctx context.Context) error

func (f healthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// buildIdempotencyStore creates the idempotency store based on config. The
// returned checker is nil for the in-memory driver: there is nothing useful
// to probe.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, observability.HealthChecker, func()) {
	switch cfg.Driver {
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			addr = "localhost:6379"
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		checker := healthCheckFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return idempotency.NewRedisStore(client), checker, func() { client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return idempotency.NewMemoryStore(), nil, func() {}
	}
}

// buildAuthenticator selects the authentication middleware for the configured
// identity mode.
func buildAuthenticator(cfg config.IdentityConfig, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	switch cfg.Mode {
	case "static":
		logger.Warn("static identity mode enabled; do not use in production",
			zap.String("user_id", cfg.StaticUserID))
		return transport.StaticAuthenticator(model.Identity{
			UserID: cfg.StaticUserID,
			Email:  cfg.StaticEmail,
		}), nil
	case "jwt", "":
		jwks := transport.NewJWKSClient(cfg.JWKSURL, cfg.JWKSCacheTTL, logger)
		return transport.JWTAuthenticator(cfg, jwks), nil
	default:
		return nil, fmt.Errorf("unsupported identity mode: %q", cfg.Mode)
	}
}
