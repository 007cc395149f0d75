// Package app wires configuration, infrastructure and the entitlement
// engine into a runnable HTTP application.
package app

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Haitham0Reda/HR-SM-sub000/internal/cache"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/config"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/infrastructure"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/license"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/notify"
	"github.com/Haitham0Reda/HR-SM-sub000/internal/store"
	transport "github.com/Haitham0Reda/HR-SM-sub000/internal/transport/http"
)

// Application holds the wired components and their lifecycles.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	OTel   *infrastructure.OTelProviders

	CacheStore  *cache.Store
	Invalidator *cache.Invalidator
	Validator   *license.Validator
	Tracker     *license.Tracker
	Hub         *notify.Hub
	Server      *http.Server

	sqlite *store.SQLiteStore
}

// NewApplication loads configuration and wires every component.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize otel: %w", err)
	}

	cacheMetrics, err := cache.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}
	licenseMetrics, err := license.NewMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create license metrics: %w", err)
	}

	cacheStore := cache.NewStore(
		cache.NewRedisClient(cfg.Redis),
		cfg.Cache.FallbackMaxSize,
		logger,
		cache.WithMetrics(cacheMetrics),
	)
	invalidator := cache.NewInvalidator(cacheStore, logger)

	app := &Application{
		Config:      cfg,
		Logger:      logger,
		OTel:        otelProviders,
		CacheStore:  cacheStore,
		Invalidator: invalidator,
		Hub:         notify.NewHub(logger),
	}

	resolver, usageRepo, auditSinks, err := app.buildSourceOfTruth()
	if err != nil {
		return nil, err
	}

	audit := license.NewMultiAuditLogger(auditSinks...)

	app.Validator = license.NewValidator(
		cacheStore, resolver, audit,
		cfg.Cache.ValidTTL, cfg.Cache.DeniedTTL,
		logger,
		license.WithNotifier(app.Hub),
		license.WithValidatorMetrics(licenseMetrics),
	)
	app.Tracker = license.NewTracker(
		usageRepo, resolver, audit,
		cfg.Usage.WarningThreshold, cfg.Usage.WarningDedupRange,
		logger,
		license.WithTrackerNotifier(app.Hub),
		license.WithTrackerMetrics(licenseMetrics),
	)

	router := transport.NewRouter(transport.RouterDeps{
		Config:      cfg,
		Store:       cacheStore,
		Invalidator: invalidator,
		Validator:   app.Validator,
		Tracker:     app.Tracker,
		Hub:         app.Hub,
		Metrics:     otelProviders.PrometheusHTTP,
		Logger:      logger,
	})

	app.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// buildSourceOfTruth selects the license resolver and usage/audit
// persistence for the configured mode.
func (a *Application) buildSourceOfTruth() (license.Resolver, license.UsageRepository, []license.AuditLogger, error) {
	cfg := a.Config
	slogSink := license.NewSlogAuditLogger(a.Logger)

	switch cfg.License.Mode {
	case config.LicenseModeDatabase:
		db, err := store.OpenSQLite(cfg.License.DatabasePath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open license database: %w", err)
		}
		a.sqlite = db
		resolver := license.NewDatabaseResolver(db, a.Logger)
		return resolver, db, []license.AuditLogger{slogSink, db}, nil

	case config.LicenseModeFile:
		var publicKey ed25519.PublicKey
		if cfg.License.PublicKey != "" {
			raw, err := hex.DecodeString(cfg.License.PublicKey)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("invalid license public key: %w", err)
			}
			if len(raw) != ed25519.PublicKeySize {
				return nil, nil, nil, fmt.Errorf("license public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
			}
			publicKey = ed25519.PublicKey(raw)
		}
		resolver := license.NewFileResolver(cfg.License.FilePath, publicKey, cfg.License.GracePeriod, a.Logger)
		// File mode keeps usage in memory; counters reset with the
		// process, which suits single-tenant desktop deployments.
		return resolver, store.NewMemoryStore(), []license.AuditLogger{slogSink}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown license mode %q", cfg.License.Mode)
	}
}

// Start begins serving. It returns once the listener is running.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", infrastructure.ServiceVersion),
		slog.Int("port", a.Config.Server.Port),
		slog.String("license_mode", a.Config.License.Mode),
	)

	// The primary cache tier being down is not fatal.
	if err := a.CacheStore.Connect(ctx); err != nil {
		a.Logger.WarnContext(ctx, "starting without primary cache tier",
			slog.String("error", err.Error()))
	}

	go a.Hub.Run()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
}

// Stop gracefully shuts the application down.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Hub.Stop()

	if err := a.CacheStore.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "error closing cache store", slog.String("error", err.Error()))
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "error closing license database", slog.String("error", err.Error()))
		}
	}
	if err := a.OTel.Shutdown(shutdownCtx); err != nil {
		a.Logger.ErrorContext(ctx, "error shutting down otel", slog.String("error", err.Error()))
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("error closing log file: %w", err)
	}

	a.Logger.Info("application stopped")
	return nil
}

// Run starts the application and blocks until a shutdown signal.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.Start(ctx, cancel)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
