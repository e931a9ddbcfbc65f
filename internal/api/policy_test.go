package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://frontend.local"

func TestPoliciesFor_Order(t *testing.T) {
	t.Parallel()

	names := func(ps []Policy) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}

	assert.Equal(t,
		[]string{PolicyValidation, PolicyCORS, PolicySecurityHeaders},
		names(PoliciesFor(devApp())))
	assert.Equal(t,
		[]string{PolicyValidation, PolicySecurityHeaders},
		names(PoliciesFor(prodApp())))
}

func TestCORS_InstalledOnlyOutsideProduction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		router   func(t *testing.T) *Router
		wantCORS bool
	}{
		{"development", func(t *testing.T) *Router { return newTestRouter(t, devApp(), newFakeSyncer()) }, true},
		{"staging", func(t *testing.T) *Router {
			app := devApp()
			app.Env = "staging"
			return newTestRouter(t, app, newFakeSyncer())
		}, true},
		{"production", func(t *testing.T) *Router { return newTestRouter(t, prodApp(), newFakeSyncer()) }, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := tc.router(t)
			assert.Equal(t, tc.wantCORS, contains(r.Installed(), PolicyCORS))

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("Origin", testOrigin)
			r.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			if tc.wantCORS {
				assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_PreflightOutsideProduction(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, devApp(), newFakeSyncer())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/routes/sync", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	// CORS answers the preflight before the security headers policy runs.
	assert.Empty(t, w.Header().Get("X-Frame-Options"))
}

func TestSecurityHeaders_InstalledExactlyOnce(t *testing.T) {
	t.Parallel()

	for _, r := range []*Router{
		newTestRouter(t, devApp(), newFakeSyncer()),
		newTestRouter(t, prodApp(), newFakeSyncer()),
	} {
		count := 0
		for _, name := range r.Installed() {
			if name == PolicySecurityHeaders {
				count++
			}
		}
		assert.Equal(t, 1, count)

		w := serve(r, http.MethodGet, "/health", "")
		assert.Equal(t, []string{"SAMEORIGIN"}, w.Header().Values("X-Frame-Options"))
		assert.Equal(t, []string{"nosniff"}, w.Header().Values("X-Content-Type-Options"))
		assert.Equal(t, "no-referrer", w.Header().Get("Referrer-Policy"))
		assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
		assert.Equal(t, "same-origin", w.Header().Get("Cross-Origin-Opener-Policy"))
		assert.Equal(t, "0", w.Header().Get("X-XSS-Protection"))
	}
}

func TestSecurityHeaders_OnErrorResponses(t *testing.T) {
	t.Parallel()

	w := serve(newTestRouter(t, prodApp(), newFakeSyncer()), http.MethodPost, "/api/v1/routes/sync", `{"force":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
}

func TestInstall_RejectsDuplicatePolicy(t *testing.T) {
	t.Parallel()

	r := NewRouter(Options{Logger: noopLogger()})
	require.NoError(t, r.Install(SecurityHeadersPolicy()))

	err := r.Install(SecurityHeadersPolicy())
	assert.ErrorIs(t, err, ErrPolicyInstalled)
	assert.Equal(t, []string{PolicySecurityHeaders}, r.Installed())
}

func TestInstall_AfterMountFails(t *testing.T) {
	t.Parallel()

	r := NewRouter(Options{Logger: noopLogger()})
	r.MountRoutes()

	assert.ErrorIs(t, r.Install(CORSPolicy()), ErrRoutesMounted)
	assert.Empty(t, r.Installed())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
