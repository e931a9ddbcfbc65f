package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"arc-framework/beacon/internal/routesync"
)

// routeSyncer is the subset of *routesync.Syncer used by the HTTP handlers.
// Declaring it as an interface allows test doubles to be injected.
type routeSyncer interface {
	SyncWithReason(ctx context.Context, routes []routesync.Route, force bool, reason string) (*routesync.Result, error)
	IsSyncInProgress() bool
	LastResult() *routesync.Result
	RunDeepHealth(ctx context.Context) map[string]routesync.ProbeResult
}

// Handler holds the dependencies shared across all HTTP handlers.
type Handler struct {
	syncer routeSyncer
	routes func() []routesync.Route
	ready  func() bool
}

// SyncRequest is the body of POST /api/v1/routes/sync.
type SyncRequest struct {
	Force  bool   `json:"force"`
	Reason string `json:"reason" mod:"trim" validate:"max=200"`
}

// Health handles GET /health. It always returns 200; this is the liveness probe.
//
//	@Summary	Liveness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"mode":   "shallow",
	})
}

// DeepHealth handles GET /health/deep.
// It probes every configured registry collaborator and returns 200 only when
// all probes are OK.
//
//	@Summary	Dependency probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	503	{object}	map[string]any
//	@Router		/health/deep [get]
func (h *Handler) DeepHealth(c *gin.Context) {
	probes := map[string]routesync.ProbeResult{}
	if h.syncer != nil {
		probes = h.syncer.RunDeepHealth(c.Request.Context())
	}

	allOK := true
	for _, p := range probes {
		if !p.OK {
			allOK = false
			break
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !allOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": probes,
	})
}

// Ready handles GET /ready.
// It returns 200 once startup has reached the serving stage; 503 otherwise.
//
//	@Summary	Readiness probe
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	map[string]bool
//	@Failure	503	{object}	map[string]bool
//	@Router		/ready [get]
func (h *Handler) Ready(c *gin.Context) {
	if h.ready != nil && h.ready() {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
}

// Routes handles GET /api/v1/routes with the live route table and the last
// sync outcome.
//
//	@Summary	Route table
//	@Tags		routes
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/api/v1/routes [get]
func (h *Handler) Routes(c *gin.Context) {
	var last *routesync.Result
	if h.syncer != nil {
		last = h.syncer.LastResult()
	}
	c.JSON(http.StatusOK, gin.H{
		"routes":   routesync.Sorted(h.routes()),
		"lastSync": last,
	})
}

// SyncRoutes handles POST /api/v1/routes/sync.
// It returns 202 when a new sync run is started in the background, or 409 if
// one is already in progress.
//
//	@Summary	Re-run route reconciliation
//	@Tags		routes
//	@Accept		json
//	@Produce	json
//	@Param		request	body		SyncRequest	false	"sync options"
//	@Success	202		{object}	map[string]string
//	@Failure	400		{object}	map[string]any
//	@Failure	409		{object}	map[string]string
//	@Router		/api/v1/routes/sync [post]
func (h *Handler) SyncRoutes(c *gin.Context) {
	var req SyncRequest
	if !Bind(c, &req) {
		return
	}
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disabled"})
		return
	}
	if h.syncer.IsSyncInProgress() {
		c.JSON(http.StatusConflict, gin.H{"status": "in-progress"})
		return
	}

	routes := h.routes()
	go func() {
		//nolint:errcheck
		h.syncer.SyncWithReason(context.Background(), routes, req.Force, req.Reason) //nolint:contextcheck
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
