// Package main is the entry point for the sign-off server. It wires all
// dependencies together and starts the HTTP server.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/signoff-hq/signoff/internal/authz"
	"github.com/signoff-hq/signoff/internal/config"
	"github.com/signoff-hq/signoff/internal/definition"
	"github.com/signoff-hq/signoff/internal/notify"
	"github.com/signoff-hq/signoff/internal/observability"
	"github.com/signoff-hq/signoff/internal/transport"
	"github.com/signoff-hq/signoff/internal/workflow"
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
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

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

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "signoff", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Load workflow definitions, validate, build the registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}

	verrs := definition.NewValidator().Validate(defs)
	if len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return 1
	}

	registry := definition.NewRegistry(defs)

	// Role policy and step authorization.
	policy, err := authz.NewStaticRolePolicy(cfg.Authz.PolicyFile)
	if err != nil {
		logger.Error("role policy initialization failed", zap.Error(err))
		return 1
	}
	roleResolver := authz.NewResolver(policy, cfg.Authz.Cache.TTL.Std())
	authorizer := authz.NewStepAuthorizer(roleResolver)

	// Record store.
	store, storeCloser, err := buildRecordStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("record store initialization failed", zap.Error(err))
		return 1
	}

	// Notifier.
	notifier, notifierCloser, err := buildNotifier(ctx, cfg.Notifier, logger)
	if err != nil {
		logger.Error("notifier initialization failed", zap.Error(err))
		return 1
	}

	engine := workflow.NewEngine(registry, store, authorizer, notifier, logger, metrics)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL.Std())

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: registry.Loaded,
	}
	if hc, ok := store.(observability.HealthChecker); ok {
		readiness.RecordStore = hc
	}
	if hc, ok := notifier.(observability.HealthChecker); ok {
		readiness.NotifierQueue = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       cfg,
		Engine:       engine,
		Authenticate: transport.JWTAuthenticator(cfg.Identity, jwks),
		Metrics:      metrics,
		Ready:        readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}
	if notifierCloser != nil {
		notifierCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildRecordStore creates the record store based on config.
func buildRecordStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (workflow.RecordStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory record store")
		return workflow.NewMemoryRecordStore(), nil, nil
	case "postgres", "":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("record store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("record store: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime.Std()

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("record store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("record store: ping: %w", err)
		}

		return workflow.NewPgRecordStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported record store driver: %q", cfg.Driver)
	}
}

// buildNotifier creates the notifier based on config.
func buildNotifier(ctx context.Context, cfg config.NotifierConfig, logger *zap.Logger) (notify.Notifier, func(), error) {
	switch cfg.Driver {
	case "none":
		return notify.NopNotifier{}, nil, nil
	case "log", "":
		return notify.NewLogNotifier(logger), nil, nil
	case "redis":
		addr := os.Getenv(cfg.Redis.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("notifier: %s environment variable not set", cfg.Redis.AddrEnv)
		}
		client, err := notify.OpenRedis(ctx, addr, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("notifier: %w", err)
		}
		closer := func() { client.Close() }
		return notify.NewQueueNotifier(client, cfg.Redis.Queue), closer, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notifier driver: %q", cfg.Driver)
	}
}
