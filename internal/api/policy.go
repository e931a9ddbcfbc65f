package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"

	"arc-framework/beacon/internal/config"
)

// Policy names as reported by Router.Installed.
const (
	PolicyValidation      = "validation"
	PolicyCORS            = "cors"
	PolicySecurityHeaders = "security-headers"
)

// Policy is a named middleware applied to every application route.
type Policy struct {
	Name    string
	Handler gin.HandlerFunc
}

// PoliciesFor returns the policies for app in installation order:
// validation, CORS (outside production only), security headers.
func PoliciesFor(app config.AppConfig) []Policy {
	policies := []Policy{
		ValidationPolicy(ValidationOptions{
			Whitelist:            true,
			Transform:            true,
			DisableErrorMessages: app.IsProduction(),
		}),
	}
	if !app.IsProduction() {
		policies = append(policies, CORSPolicy())
	}
	return append(policies, SecurityHeadersPolicy())
}

// ValidationPolicy makes opts visible to Bind for every request.
func ValidationPolicy(opts ValidationOptions) Policy {
	return Policy{
		Name: PolicyValidation,
		Handler: func(c *gin.Context) {
			c.Set(validationOptionsKey, opts)
			c.Next()
		},
	}
}

// CORSPolicy allows any origin with the usual REST methods.
func CORSPolicy() Policy {
	return Policy{
		Name: PolicyCORS,
		Handler: cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods: []string{
				http.MethodGet, http.MethodHead, http.MethodPut,
				http.MethodPatch, http.MethodPost, http.MethodDelete,
			},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}),
	}
}

// contentSecurityPolicy keeps the Swagger UI working: its index page relies
// on inline script and style.
const contentSecurityPolicy = "default-src 'self'; base-uri 'self'; font-src 'self' https: data:; " +
	"form-action 'self'; frame-ancestors 'self'; img-src 'self' data:; object-src 'none'; " +
	"script-src 'self' 'unsafe-inline'; style-src 'self' https: 'unsafe-inline'"

// SecurityHeadersPolicy sets clickjacking, MIME-sniffing, HSTS, referrer and
// cross-origin isolation headers on every response.
func SecurityHeadersPolicy() Policy {
	headers := secure.New(secure.Config{
		STSSeconds:              15552000,
		STSIncludeSubdomains:    true,
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		ContentSecurityPolicy:   contentSecurityPolicy,
		ReferrerPolicy:          "no-referrer",
	})

	return Policy{
		Name: PolicySecurityHeaders,
		Handler: func(c *gin.Context) {
			h := c.Writer.Header()
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			h.Set("Origin-Agent-Cluster", "?1")
			h.Set("X-DNS-Prefetch-Control", "off")
			h.Set("X-Download-Options", "noopen")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("X-XSS-Protection", "0")
			h.Del("X-Powered-By")
			headers(c)
		},
	}
}
