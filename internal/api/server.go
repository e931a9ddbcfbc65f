package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"arc-framework/beacon/internal/routesync"
)

var (
	// ErrRoutesMounted is returned by Install once application routes exist.
	// gin combines middleware into each route at registration time, so a
	// policy installed afterwards would silently miss them.
	ErrRoutesMounted = errors.New("policies must be installed before routes are mounted")

	// ErrPolicyInstalled is returned when the same policy is installed twice.
	ErrPolicyInstalled = errors.New("policy already installed")
)

// Options carries the Router's collaborators.
type Options struct {
	Logger      *slog.Logger
	ServiceName string
	Syncer      routeSyncer
}

// Router wraps a configured gin engine and exposes it as an http.Handler.
type Router struct {
	engine    *gin.Engine
	handler   *Handler
	installed []string
	mounted   bool
	published bool
	ready     atomic.Bool
}

// NewRouter constructs a Router with the base middleware chain and no
// routes. Base middleware order:
//  1. Recovery: panic → 500
//  2. RequestID: X-Request-ID echo or new UUID
//  3. Tracing: OTEL span per request
//  4. RequestLogger: one access line per request
//
// Policies are added with Install, then MountRoutes registers the
// application routes.
func NewRouter(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(Recovery(logger))
	engine.Use(RequestID())
	engine.Use(Tracing(opts.ServiceName))
	engine.Use(RequestLogger(logger))

	r := &Router{engine: engine}
	r.handler = &Handler{
		syncer: opts.Syncer,
		routes: r.RouteTable,
		ready:  r.ready.Load,
	}
	return r
}

// Install appends policies to the middleware chain in the order given.
func (r *Router) Install(policies ...Policy) error {
	if r.mounted {
		return ErrRoutesMounted
	}
	for _, p := range policies {
		for _, name := range r.installed {
			if name == p.Name {
				return fmt.Errorf("%w: %s", ErrPolicyInstalled, p.Name)
			}
		}
		r.engine.Use(p.Handler)
		r.installed = append(r.installed, p.Name)
	}
	return nil
}

// Installed lists installed policy names in installation order.
func (r *Router) Installed() []string {
	out := make([]string, len(r.installed))
	copy(out, r.installed)
	return out
}

// MountRoutes registers the application routes. It is a no-op after the
// first call.
func (r *Router) MountRoutes() {
	if r.mounted {
		return
	}
	r.mounted = true

	h := r.handler

	v1 := r.engine.Group("/api/v1")
	v1.GET("/routes", h.Routes)
	v1.POST("/routes/sync", h.SyncRoutes)

	r.engine.GET("/health", h.Health)
	r.engine.GET("/health/deep", h.DeepHealth)
	r.engine.GET("/ready", h.Ready)
}

// RouteTable returns the engine's registered routes.
func (r *Router) RouteTable() []routesync.Route {
	infos := r.engine.Routes()
	routes := make([]routesync.Route, len(infos))
	for i, info := range infos {
		routes[i] = routesync.Route{Method: info.Method, Path: info.Path, Handler: info.Handler}
	}
	return routes
}

// SetReady flips the /ready probe.
func (r *Router) SetReady(ready bool) {
	r.ready.Store(ready)
}

// Handler returns the underlying http.Handler for use with net/http servers.
func (r *Router) Handler() http.Handler {
	return r.engine
}
