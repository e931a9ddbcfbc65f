package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag"

	"arc-framework/beacon/docs"
	"arc-framework/beacon/internal/config"
	"arc-framework/beacon/internal/routesync"
)

// DocsPath is reserved for the Swagger UI and document. No application route
// may live at or under it.
const DocsPath = "/sapi"

var (
	// ErrDocsPathCollision is returned when an application route already
	// occupies DocsPath.
	ErrDocsPathCollision = errors.New("documentation path collides with an application route")

	// ErrDocsPublished is returned by a second PublishDocumentation call.
	ErrDocsPublished = errors.New("documentation already published")
)

// docSeq keeps swag registry names unique; swag.Register panics on reuse.
var docSeq atomic.Uint64

// Document describes a published Swagger document.
type Document struct {
	Instance    string
	Path        string
	Title       string
	Description string
	Version     string
	Host        string

	spec *swag.Spec
}

// JSON renders the Swagger 2.0 document.
func (d *Document) JSON() string {
	return d.spec.ReadDoc()
}

// CheckDocsPath reports ErrDocsPathCollision if any route is DocsPath or
// nested under it.
func CheckDocsPath(routes []routesync.Route) error {
	for _, r := range routes {
		if r.Path == DocsPath || strings.HasPrefix(r.Path, DocsPath+"/") {
			return fmt.Errorf("%w: %s %s", ErrDocsPathCollision, r.Method, r.Path)
		}
	}
	return nil
}

// PublishDocumentation builds the Swagger descriptor from app and serves it
// under DocsPath: the UI at /sapi/index.html and the document at
// /sapi/doc.json.
func (r *Router) PublishDocumentation(app config.AppConfig) (*Document, error) {
	if r.published {
		return nil, ErrDocsPublished
	}
	if err := CheckDocsPath(r.RouteTable()); err != nil {
		return nil, err
	}

	base := docs.SwaggerInfo
	instance := fmt.Sprintf("%s-%d", base.InstanceName(), docSeq.Add(1))
	spec := &swag.Spec{
		Version:          app.Version,
		Host:             app.Addr(),
		BasePath:         base.BasePath,
		Schemes:          []string{"http"},
		Title:            app.Name,
		Description:      app.Description,
		InfoInstanceName: instance,
		SwaggerTemplate:  base.SwaggerTemplate,
		LeftDelim:        base.LeftDelim,
		RightDelim:       base.RightDelim,
	}
	swag.Register(instance, spec)

	r.engine.GET(DocsPath, func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, DocsPath+"/index.html")
	})
	r.engine.GET(DocsPath+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(instance)))
	r.published = true

	return &Document{
		Instance:    instance,
		Path:        DocsPath,
		Title:       spec.Title,
		Description: spec.Description,
		Version:     spec.Version,
		Host:        spec.Host,
		spec:        spec,
	}, nil
}
