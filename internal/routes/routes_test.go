package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser-service/internal/bootstrap"
	"focuser-service/internal/config"
	"focuser-service/internal/handler"
	"focuser-service/internal/middleware"
)

func newTestRouter(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Security: config.SecurityConfig{AllowedOrigins: origins},
		Focuser: config.FocuserConfig{
			ReadTimeout:    50 * time.Millisecond,
			VerifyChecksum: true,
			DefaultSteps:   50,
		},
		Discovery: config.DiscoveryConfig{ProbeTimeout: 50 * time.Millisecond},
		Simulator: config.SimulatorConfig{Enabled: true, Devices: 1, Position: 500},
		App:       config.AppConfig{Environment: "test"},
	}

	logger := zap.NewNop()
	bus := handler.NewEventBus(logger)
	go bus.Start()
	svc, _ := bootstrap.NewFocuserService(cfg, bus, logger)

	router := NewRouter(cfg, logger, svc, bus)
	engine := router.SetupRouter()
	t.Cleanup(func() {
		router.Close()
		svc.Close()
		bus.Stop()
	})
	return engine
}

func TestRequestIDPropagation(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestFocuserRoutesThroughMiddleware(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/focuser/position", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_CONNECTED")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/focuser/connect",
		strings.NewReader(`{"port":"`+bootstrap.SimulatedPort(1)+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/focuser/position", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"position":500`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, "http://observatory.local")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/focuser", nil)
	req.Header.Set("Origin", "http://observatory.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://observatory.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
