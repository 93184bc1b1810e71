package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/meridian-ai/acc/internal/bus"
	"github.com/meridian-ai/acc/internal/config"
	"github.com/meridian-ai/acc/internal/server"
	"github.com/meridian-ai/acc/internal/service/discovery"
	"github.com/meridian-ai/acc/internal/service/lifecycle"
	"github.com/meridian-ai/acc/internal/service/reconcile"
	"github.com/meridian-ai/acc/internal/service/traces"
	"github.com/meridian-ai/acc/internal/storage"
	"github.com/meridian-ai/acc/internal/telemetry"
	"github.com/meridian-ai/acc/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ACC_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("acc starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Connect to database. The notify connection backs the resume channel.
	db, err := storage.New(ctx, cfg.DatabaseURL, true, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(ctx)

	// Run migrations. RunMigrations tracks applied files in schema_migrations
	// and skips duplicates, so errors here indicate real failures.
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	// Seed demo data (local bring-up only, no-op when agents exist).
	if cfg.SeedDemo {
		if err := db.SeedDemo(ctx); err != nil {
			slog.Warn("demo seed failed", "error", err)
		}
	}

	// Resume-signal publisher on the configured NOTIFY channel.
	publisher := bus.NewPostgresPublisher(db, cfg.ResumeChannel, logger)

	lifecycleMgr := lifecycle.New(db, publisher, logger)
	traceSvc := traces.New(db)

	// Ingress counts for reconciliation; a missing ingress URL degrades to
	// zero counters instead of failing the report.
	var ingress reconcile.Ingress = reconcile.ZeroIngress{}
	if cfg.IngressURL != "" {
		ingress = reconcile.NewHTTPIngress(cfg.IngressURL, cfg.IngressTimeout)
		logger.Info("ingress reconciliation enabled", "url", cfg.IngressURL)
	} else {
		logger.Info("ingress reconciliation disabled (no ACC_INGRESS_URL)")
	}
	reconciler := reconcile.New(db, ingress)

	// Agent discovery loop.
	registry := discovery.NewRegistryClient(cfg.RegistryBaseURL, cfg.RegistryTimeout)
	discoverySvc := discovery.New(db, registry, cfg.DiscoveryInterval, logger)
	go discoverySvc.Run(ctx)

	srv := server.New(server.ServerConfig{
		DB:           db,
		LifecycleMgr: lifecycleMgr,
		TraceSvc:     traceSvc,
		Reconciler:   reconciler,
		DiscoverySvc: discoverySvc,
		RegistryURL:  cfg.RegistryBaseURL,
		Logger:       logger,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
	})

	// Start HTTP server in background.
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("acc shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("acc stopped")
	return nil
}
