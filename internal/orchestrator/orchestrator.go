// Package orchestrator brings the HTTP server from constructed to serving.
// Each step runs once, in order:
//
//	Constructed → PoliciesApplied → DocumentationPublished → Listening → Synced → Serving
//
// Failures before Listening abort startup. A failed route sync after
// Listening is logged and counted but the server keeps serving.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"arc-framework/beacon/internal/api"
	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

const bannerSeparator = "-------------------------------------"

// routeSyncer is satisfied by *routesync.Syncer.
type routeSyncer interface {
	Sync(ctx context.Context, routes []routesync.Route, force bool) (*routesync.Result, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for startup messages and the banner.
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithSyncer sets the post-listen route syncer. Without one the sync step
// is a no-op.
func WithSyncer(s routeSyncer) Option { return func(o *Orchestrator) { o.syncer = s } }

// WithSyncTimeout bounds the post-listen sync. Zero means no bound.
func WithSyncTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.syncTimeout = d } }

// WithServerConfig sets the http.Server timeouts.
func WithServerConfig(cfg config.ServerConfig) Option {
	return func(o *Orchestrator) { o.server = cfg }
}

// Orchestrator runs the startup sequence for one Router.
type Orchestrator struct {
	app         config.AppConfig
	server      config.ServerConfig
	router      *api.Router
	syncer      routeSyncer
	syncTimeout time.Duration
	logger      *slog.Logger

	stage    atomic.Int32
	srv      *http.Server
	listener net.Listener
	serveErr chan error
	doc      *api.Document
	syncErr  error

	syncFailures metric.Int64Counter
}

// New returns an Orchestrator in StageConstructed. app is copied; later
// changes by the caller are not observed.
func New(app config.AppConfig, router *api.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		app:      app,
		router:   router,
		logger:   slog.Default(),
		serveErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(o)
	}

	failures, err := otel.Meter("arc-beacon").Int64Counter("beacon.startup.sync_failures",
		metric.WithDescription("Post-listen route syncs that failed while the server kept serving"),
	)
	if err != nil {
		o.logger.Warn("sync failure counter unavailable", "err", err)
	}
	o.syncFailures = failures
	return o
}

// Stage returns the current startup stage.
func (o *Orchestrator) Stage() Stage {
	return Stage(o.stage.Load())
}

// begin reserves the from → to transition. Until the step stores its
// outcome the stage reads as transitioning and every other step fails.
func (o *Orchestrator) begin(from, to Stage) error {
	if !o.stage.CompareAndSwap(int32(from), int32(stageTransitioning)) {
		return fmt.Errorf("%w: %s requires %s, at %s", ErrInvalidTransition, to, from, o.Stage())
	}
	return nil
}

// ApplyCrossCuttingPolicies installs validation, CORS (outside production)
// and security headers, in that order, then mounts the application routes.
func (o *Orchestrator) ApplyCrossCuttingPolicies() error {
	if err := o.begin(StageConstructed, StagePoliciesApplied); err != nil {
		return err
	}
	if err := o.router.Install(api.PoliciesFor(o.app)...); err != nil {
		o.stage.Store(int32(StageConstructed))
		return fmt.Errorf("installing policies: %w", err)
	}
	o.router.MountRoutes()

	o.logger.Debug("policies installed", "env", o.app.Env, "policies", o.router.Installed())
	o.stage.Store(int32(StagePoliciesApplied))
	return nil
}

// PublishDocumentation serves the Swagger document at api.DocsPath.
func (o *Orchestrator) PublishDocumentation() (*api.Document, error) {
	if err := o.begin(StagePoliciesApplied, StageDocumentationPublished); err != nil {
		return nil, err
	}
	doc, err := o.router.PublishDocumentation(o.app)
	if err != nil {
		o.stage.Store(int32(StagePoliciesApplied))
		return nil, fmt.Errorf("publishing documentation: %w", err)
	}

	o.doc = doc
	o.stage.Store(int32(StageDocumentationPublished))
	return doc, nil
}

// BindAndListen binds app.host:app.port and starts serving in the
// background. It returns once the socket is bound, or a *BindError.
// Serve errors after a successful bind are delivered on Done.
func (o *Orchestrator) BindAndListen(ctx context.Context) error {
	if err := o.begin(StageDocumentationPublished, StageListening); err != nil {
		return err
	}

	addr := o.app.Addr()
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		o.stage.Store(int32(StageDocumentationPublished))
		return &BindError{Addr: addr, Err: err}
	}

	o.listener = ln
	o.srv = &http.Server{
		Handler:      o.router.Handler(),
		ReadTimeout:  o.server.ReadTimeout,
		WriteTimeout: o.server.WriteTimeout,
	}

	go func() {
		if err := o.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.serveErr <- err
		}
	}()

	o.logger.Debug("listener bound", "addr", ln.Addr().String())
	o.stage.Store(int32(StageListening))
	return nil
}

// PostListenSync reconciles the live route table with the registry once.
// The stage advances to Synced whether or not the sync succeeds; a failure
// is returned as *SyncError.
func (o *Orchestrator) PostListenSync(ctx context.Context) error {
	if err := o.begin(StageListening, StageSynced); err != nil {
		return err
	}
	defer o.stage.Store(int32(StageSynced))

	if o.syncer == nil {
		return nil
	}
	if o.syncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.syncTimeout)
		defer cancel()
	}

	result, err := o.syncer.Sync(ctx, o.router.RouteTable(), false)
	if err != nil {
		return &SyncError{Err: err}
	}
	if result.Status == routesync.StatusError {
		return &SyncError{Result: result}
	}
	return nil
}

// Run executes the whole startup sequence and returns the first fatal error.
// On success the server is serving, /ready answers 200 and the banner has
// been logged.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.ApplyCrossCuttingPolicies(); err != nil {
		return err
	}
	if _, err := o.PublishDocumentation(); err != nil {
		return err
	}
	if err := o.BindAndListen(ctx); err != nil {
		return err
	}

	if err := o.PostListenSync(ctx); err != nil {
		o.syncErr = err
		o.logger.WarnContext(ctx, "post-listen route sync failed, serving with unreconciled route registry", "err", err)
		if o.syncFailures != nil {
			o.syncFailures.Add(ctx, 1)
		}
	}

	if err := o.begin(StageSynced, StageServing); err != nil {
		return err
	}
	o.stage.Store(int32(StageServing))
	o.router.SetReady(true)
	ReportStartup(o.logger, o.app)
	return nil
}

// ReportStartup logs the six-line startup banner tagged context=Bootstrap.
func ReportStartup(logger *slog.Logger, app config.AppConfig) {
	l := logger.With("context", "Bootstrap")
	l.Info(bannerSeparator)
	l.Info("Server running on " + app.BaseURL())
	l.Info("Swagger running on " + app.BaseURL() + api.DocsPath)
	l.Info("Environment: " + app.Env)
	l.Info("Version: " + app.Version)
	l.Info(bannerSeparator)
}

// Done delivers a serve error that occurred after the bind.
func (o *Orchestrator) Done() <-chan error {
	return o.serveErr
}

// Addr returns the bound listener address, or "" before BindAndListen.
func (o *Orchestrator) Addr() string {
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

// Document returns the published Swagger document, or nil.
func (o *Orchestrator) Document() *api.Document {
	return o.doc
}

// SyncErr returns the post-listen sync failure recorded by Run, if any.
func (o *Orchestrator) SyncErr() error {
	return o.syncErr
}

// Shutdown marks the server not ready and drains in-flight requests.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.router.SetReady(false)
	if o.srv == nil {
		return nil
	}
	if err := o.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
