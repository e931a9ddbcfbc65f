package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareEngine(logger *slog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(Recovery(logger), RequestID(), RequestLogger(logger))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/api/v1/routes", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/boom", func(c *gin.Context) { panic("boom") })
	return engine
}

func TestRequestID_AssignsAndEchoes(t *testing.T) {
	t.Parallel()

	engine := newMiddlewareEngine(noopLogger())

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "deploy-42")
	engine.ServeHTTP(w, req)
	assert.Equal(t, "deploy-42", w.Header().Get(RequestIDHeader))
}

func TestRecovery_ReturnsErrorBody(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	engine := newMiddlewareEngine(slog.New(slog.NewJSONHandler(&buf, nil)))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Contains(t, buf.String(), `"msg":"handler panicked"`)
}

func TestRequestLogger_Levels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path      string
		wantLevel string
	}{
		{path: "/health", wantLevel: "DEBUG"},
		{path: "/api/v1/routes", wantLevel: "INFO"},
		{path: "/missing", wantLevel: "WARN"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			engine := newMiddlewareEngine(logger)

			engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil))

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tc.wantLevel, line["level"])
			assert.Equal(t, "request", line["msg"])
			assert.NotEmpty(t, line["request_id"])
		})
	}
}

func TestAccessLevel_ServerError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelError, accessLevel("/health", http.StatusServiceUnavailable))
}
