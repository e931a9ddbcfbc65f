package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arc-framework/beacon/internal/routesync"
)

func TestCheckDocsPath(t *testing.T) {
	t.Parallel()

	table := []routesync.Route{
		{Method: "GET", Path: "/health"},
		{Method: "GET", Path: "/sapient"},
		{Method: "POST", Path: "/api/v1/sapi"},
	}
	require.NoError(t, CheckDocsPath(table))

	for _, path := range []string{"/sapi", "/sapi/", "/sapi/index.html", "/sapi/*any"} {
		err := CheckDocsPath(append(table, routesync.Route{Method: "GET", Path: path}))
		assert.ErrorIs(t, err, ErrDocsPathCollision, path)
	}
}

func TestPublishDocumentation_ServesDocument(t *testing.T) {
	t.Parallel()

	app := prodApp()
	app.Description = `Beacon "edge" API`
	r := newTestRouter(t, app, newFakeSyncer())

	doc, err := r.PublishDocumentation(app)
	require.NoError(t, err)
	assert.Equal(t, DocsPath, doc.Path)
	assert.Equal(t, "X", doc.Title)
	assert.Equal(t, "1.0.0", doc.Version)
	assert.Equal(t, "localhost:4000", doc.Host)

	w := serve(r, http.MethodGet, "/sapi/doc.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"), "docs get the security headers too")

	var spec struct {
		Swagger string `json:"swagger"`
		Host    string `json:"host"`
		Info    struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Version     string `json:"version"`
		} `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spec))
	assert.Equal(t, "2.0", spec.Swagger)
	assert.Equal(t, "localhost:4000", spec.Host)
	assert.Equal(t, "X", spec.Info.Title)
	assert.Equal(t, `Beacon "edge" API`, spec.Info.Description)
	assert.Equal(t, "1.0.0", spec.Info.Version)
	assert.Contains(t, spec.Paths, "/api/v1/routes/sync")

	assert.JSONEq(t, w.Body.String(), doc.JSON())
}

func TestPublishDocumentation_RedirectsBarePath(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, devApp(), newFakeSyncer())
	_, err := r.PublishDocumentation(devApp())
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/sapi", "")
	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/sapi/index.html", w.Header().Get("Location"))
}

func TestPublishDocumentation_OnlyAddsDocsRoutes(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, devApp(), newFakeSyncer())
	before := r.RouteTable()

	_, err := r.PublishDocumentation(devApp())
	require.NoError(t, err)

	after := r.RouteTable()
	require.Len(t, after, len(before)+2)

	var added []string
	for _, route := range after {
		if route.Path == DocsPath || route.Path == DocsPath+"/*any" {
			added = append(added, route.Path)
			continue
		}
		assert.Contains(t, before, route)
	}
	assert.ElementsMatch(t, []string{DocsPath, DocsPath + "/*any"}, added)

	_, err = r.PublishDocumentation(devApp())
	assert.ErrorIs(t, err, ErrDocsPublished)
}

func TestPublishDocumentation_CollisionWithMountedRoute(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, devApp(), newFakeSyncer())
	r.engine.GET("/sapi/custom", func(c *gin.Context) {})

	_, err := r.PublishDocumentation(devApp())
	assert.ErrorIs(t, err, ErrDocsPathCollision)
}
