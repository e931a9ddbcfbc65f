package main

import (
	"context"
	"log/slog"
	"time"

	"arc-framework/beacon/internal/api"
	"arc-framework/beacon/internal/clients"
	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/orchestrator"
	"arc-framework/beacon/internal/routesync"
	"arc-framework/beacon/internal/telemetry"
)

// AppContext holds all constructed application dependencies shared across
// subcommands. It is built once in PersistentPreRunE and referenced by
// server.go and sync.go.
type AppContext struct {
	cfg          *config.Config
	otelProvider *telemetry.Provider
	syncer       *routesync.Syncer
	router       *api.Router
	orchestrator *orchestrator.Orchestrator
}

// buildAppContext constructs all application dependencies from cfg:
//  1. Initialises the OTEL provider (best-effort, non-fatal)
//  2. Creates one circuit breaker per registry collaborator
//  3. Creates the route syncer over Postgres, Redis and NATS
//  4. Creates the HTTP router
//  5. Creates the startup orchestrator
func buildAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	app := &AppContext{cfg: cfg}

	// OTEL is best-effort: a missing collector must never block startup.
	if cfg.Telemetry.OTLPEndpoint == "" {
		slog.Info("OTEL telemetry disabled (no endpoint configured)")
	} else {
		tp, err := telemetry.InitProvider(ctx, telemetry.Options{
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Env,
			Insecure:       cfg.Telemetry.OTLPInsecure,
		})
		if err != nil {
			slog.Warn("OTEL provider init failed, telemetry disabled", "err", err)
		} else {
			app.otelProvider = tp
		}
	}

	if cfg.Sync.Enabled {
		app.syncer = routesync.New(cfg.App.Name, syncOptions(cfg.Sync)...)
	} else {
		slog.Info("route sync disabled")
	}

	routerOpts := api.Options{
		Logger:      slog.Default(),
		ServiceName: cfg.Telemetry.ServiceName,
	}
	// A nil *Syncer must not reach the router as a non-nil interface.
	if app.syncer != nil {
		routerOpts.Syncer = app.syncer
	}
	app.router = api.NewRouter(routerOpts)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(slog.Default()),
		orchestrator.WithServerConfig(cfg.Server),
		orchestrator.WithSyncTimeout(cfg.Sync.Timeout),
	}
	if app.syncer != nil {
		orchOpts = append(orchOpts, orchestrator.WithSyncer(app.syncer))
	}
	app.orchestrator = orchestrator.New(cfg.App, app.router, orchOpts...)

	return app, nil
}

// syncOptions wires one collaborator per configured address. One circuit
// breaker per client so each dependency trips independently.
func syncOptions(cfg config.SyncConfig) []routesync.Option {
	var opts []routesync.Option
	if cfg.Postgres.Host != "" {
		cb := clients.NewCircuitBreaker("postgres", cfg.Breaker)
		opts = append(opts, routesync.WithStore(clients.NewRouteStore(cfg.Postgres, cb)))
	}
	if cfg.Redis.Host != "" {
		cb := clients.NewCircuitBreaker("redis", cfg.Breaker)
		opts = append(opts, routesync.WithCache(clients.NewDigestCache(cfg.Redis, cb)))
	}
	if cfg.NATS.URL != "" {
		cb := clients.NewCircuitBreaker("nats", cfg.Breaker)
		opts = append(opts, routesync.WithNotifier(clients.NewNotifier(cfg.NATS, cb)))
	}
	return opts
}

// shutdownTelemetry flushes pending spans and metrics.
func (a *AppContext) shutdownTelemetry() {
	if a.otelProvider == nil {
		return
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otelProvider.Shutdown(shutCtx); err != nil {
		slog.Warn("OTEL shutdown error", "err", err)
	}
}
