// Package routesync reconciles the HTTP route table with the external route
// registry once the listener is live.
package routesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// ErrSyncInProgress is returned when Sync is called while a run is active.
var ErrSyncInProgress = errors.New("route sync already in progress")

const (
	sinkRegistry = "registry"
	sinkCache    = "cache"
	sinkNotifier = "notifier"
)

// RouteStore is satisfied by *clients.RouteStore.
type RouteStore interface {
	Reconcile(ctx context.Context, service string, routes []Route) (removed int64, err error)
	Probe(ctx context.Context) ProbeResult
}

// DigestCache is satisfied by *clients.DigestCache.
type DigestCache interface {
	Get(ctx context.Context, service string) (string, error)
	Set(ctx context.Context, service, digest string) error
	Probe(ctx context.Context) ProbeResult
}

// Notifier is satisfied by *clients.Notifier.
type Notifier interface {
	Publish(ctx context.Context, ev Event) error
	Probe(ctx context.Context) ProbeResult
}

// Option configures optional collaborators on a Syncer.
type Option func(*Syncer)

func WithStore(s RouteStore) Option { return func(sy *Syncer) { sy.store = s } }

func WithCache(c DigestCache) Option { return func(sy *Syncer) { sy.cache = c } }

func WithNotifier(n Notifier) Option { return func(sy *Syncer) { sy.notifier = n } }

// Syncer runs route reconciliation and dependency probes. Collaborators left
// unset are reported as skipped.
type Syncer struct {
	service  string
	store    RouteStore
	cache    DigestCache
	notifier Notifier

	inProgress atomic.Bool
	lastResult *Result
	resultMu   sync.RWMutex

	runs metric.Int64Counter
}

// New constructs a Syncer that registers routes under service.
func New(service string, opts ...Option) *Syncer {
	s := &Syncer{service: service}
	for _, opt := range opts {
		opt(s)
	}

	// The global meter is a no-op until telemetry.InitProvider runs.
	runs, err := otel.Meter("arc-beacon").Int64Counter("beacon.routes.sync.runs",
		metric.WithDescription("Route sync runs by outcome status"),
	)
	if err != nil {
		slog.Warn("route sync counter unavailable", "err", err)
	}
	s.runs = runs
	return s
}

// Sync reconciles routes with the registry. Unless force is set, an unchanged
// digest in the cache short-circuits the run with StatusSkipped. Collaborator
// failures are recorded in the Result rather than returned; the only error is
// ErrSyncInProgress.
func (s *Syncer) Sync(ctx context.Context, routes []Route, force bool) (*Result, error) {
	return s.SyncWithReason(ctx, routes, force, "")
}

// SyncWithReason is Sync with an operator-supplied reason attached to the
// published event.
func (s *Syncer) SyncWithReason(ctx context.Context, routes []Route, force bool, reason string) (*Result, error) {
	if !s.inProgress.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.inProgress.Store(false)

	digest := Digest(routes)
	result := &Result{
		Status: StatusInProgress,
		Digest: digest,
		Routes: len(routes),
		Sinks:  make(map[string]SinkResult, 3),
	}

	ctx, span := otel.Tracer("arc-beacon").Start(ctx, "beacon.routes.sync")
	defer span.End()
	span.SetAttributes(
		attribute.String("routes.digest", digest),
		attribute.Int("routes.count", len(routes)),
		attribute.Bool("routes.force", force),
	)

	slog.InfoContext(ctx, "route sync started", "routes", len(routes), "force", force)

	if !force && s.unchanged(ctx, digest) {
		result.Status = StatusSkipped
		for _, name := range []string{sinkRegistry, sinkCache, sinkNotifier} {
			result.Sinks[name] = SinkResult{Name: name, Status: StatusSkipped}
		}
		s.finish(ctx, span, result)
		return result, nil
	}

	removed, regErr := s.reconcile(ctx, routes)
	record(ctx, result, sinkResult(sinkRegistry, s.store != nil, regErr))

	if regErr != nil {
		result.Sinks[sinkCache] = SinkResult{Name: sinkCache, Status: StatusSkipped}
		result.Sinks[sinkNotifier] = SinkResult{Name: sinkNotifier, Status: StatusSkipped}
	} else {
		// A plain errgroup (no context) so one failure does not cancel the other.
		var g errgroup.Group

		g.Go(func() error {
			var err error
			if s.cache != nil {
				err = s.cache.Set(ctx, s.service, digest)
			}
			record(ctx, result, sinkResult(sinkCache, s.cache != nil, err))
			return nil
		})

		g.Go(func() error {
			var err error
			if s.notifier != nil {
				err = s.notifier.Publish(ctx, Event{
					Service: s.service,
					Digest:  digest,
					Routes:  Sorted(routes),
					Removed: removed,
					Reason:  reason,
				})
			}
			record(ctx, result, sinkResult(sinkNotifier, s.notifier != nil, err))
			return nil
		})

		_ = g.Wait()
	}

	result.Status = StatusOK
	for _, sink := range result.Sinks {
		if sink.Status == StatusError {
			result.Status = StatusError
			break
		}
	}

	s.finish(ctx, span, result)
	return result, nil
}

func (s *Syncer) unchanged(ctx context.Context, digest string) bool {
	if s.cache == nil {
		return false
	}
	cached, err := s.cache.Get(ctx, s.service)
	if err != nil {
		slog.WarnContext(ctx, "route digest lookup failed, syncing anyway", "err", err)
		return false
	}
	return cached == digest
}

func (s *Syncer) reconcile(ctx context.Context, routes []Route) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	removed, err := s.store.Reconcile(ctx, s.service, Sorted(routes))
	if err != nil {
		return 0, fmt.Errorf("reconcile: %w", err)
	}
	return removed, nil
}

func (s *Syncer) finish(ctx context.Context, span trace.Span, result *Result) {
	span.SetAttributes(attribute.String("routes.sync.status", result.Status))
	if result.Status == StatusError {
		span.SetStatus(codes.Error, "one or more route sync sinks failed")
		slog.WarnContext(ctx, "route sync completed with errors", "status", result.Status)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "route sync completed", "status", result.Status, "digest", result.Digest)
	}

	if s.runs != nil {
		s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", result.Status)))
	}

	s.resultMu.Lock()
	s.lastResult = result
	s.resultMu.Unlock()
}

// RunDeepHealth probes every configured collaborator concurrently.
func (s *Syncer) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, 3)
	var mu sync.Mutex
	var g errgroup.Group

	probe := func(name string, fn func(context.Context) ProbeResult) {
		g.Go(func() error {
			p := fn(ctx)
			mu.Lock()
			results[name] = p
			mu.Unlock()
			return nil
		})
	}

	if s.store != nil {
		probe(sinkRegistry, s.store.Probe)
	}
	if s.cache != nil {
		probe(sinkCache, s.cache.Probe)
	}
	if s.notifier != nil {
		probe(sinkNotifier, s.notifier.Probe)
	}

	_ = g.Wait()
	return results
}

// IsSyncInProgress returns true while a sync run is active.
func (s *Syncer) IsSyncInProgress() bool {
	return s.inProgress.Load()
}

// LastResult returns the most recent completed run, or nil.
func (s *Syncer) LastResult() *Result {
	s.resultMu.RLock()
	defer s.resultMu.RUnlock()
	return s.lastResult
}

// record stores a sink outcome and logs it with trace correlation.
func record(ctx context.Context, result *Result, sr SinkResult) {
	switch sr.Status {
	case StatusOK:
		slog.InfoContext(ctx, "route sync sink ok", "sink", sr.Name)
	case StatusError:
		slog.WarnContext(ctx, "route sync sink failed", "sink", sr.Name, "error", sr.Error)
	}
	result.Lock()
	result.Sinks[sr.Name] = sr
	result.Unlock()
}

func sinkResult(name string, configured bool, err error) SinkResult {
	switch {
	case !configured:
		return SinkResult{Name: name, Status: StatusSkipped}
	case err != nil:
		return SinkResult{Name: name, Status: StatusError, Error: err.Error()}
	default:
		return SinkResult{Name: name, Status: StatusOK}
	}
}
