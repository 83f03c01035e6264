package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/discovery"
	"focuser-service/internal/model"
	"focuser-service/internal/protocol/robofocus"
	"focuser-service/internal/service"
	"focuser-service/internal/simulator"
	"focuser-service/internal/utils"
)

type testEnv struct {
	router  *gin.Engine
	service *service.FocuserService
	bus     *EventBus
	ws      *WebSocketHandler
	reg     *simulator.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := simulator.NewRegistry(nil)
	reg.Add("sim://a", simulator.NewDevice(1000))
	bad := simulator.NewDevice(0)
	bad.SetFault(simulator.FaultWrongOpcode)
	reg.Add("sim://bad", bad)

	scanner := discovery.NewScanner(discovery.Config{ProbeTimeout: 10 * time.Millisecond, VerifyChecksum: true}, reg.Open, zap.NewNop())
	scanner.RegisterLister("simulator", reg)

	bus := NewEventBus(zap.NewNop())
	go bus.Start()

	svc := service.NewFocuserService(&config.FocuserConfig{
		ReadTimeout:    10 * time.Millisecond,
		VerifyChecksum: true,
		DefaultSteps:   50,
	}, scanner, reg.Open, bus, zap.NewNop())

	cfg := &config.Config{App: config.AppConfig{Name: "focuser-service", Version: "test"}}
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(utils.RequestIDKey, "req-1")
		c.Next()
	})

	ws := NewWebSocketHandler(svc, bus, nil, zap.NewNop())
	NewHealthHandler(svc, cfg, zap.NewNop()).RegisterRoutes(&router.RouterGroup)
	api := router.Group("/api/v1")
	NewFocuserHandler(svc, zap.NewNop()).RegisterRoutes(api)
	NewDiscoveryHandler(svc, zap.NewNop()).RegisterRoutes(api)
	ws.RegisterRoutes(router.Group("/ws"))

	t.Cleanup(func() {
		svc.Close()
		ws.Close()
		bus.Stop()
	})
	return &testEnv{router: router, service: svc, bus: bus, ws: ws, reg: reg}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, utils.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	if strings.HasPrefix(path, "/api/") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w.Code, resp
}

func dataField(t *testing.T, resp utils.APIResponse, key string) interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data[key]
}

func TestFocuserLifecycle(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/api/v1/focuser", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(model.ConnectionStateClosed), dataField(t, resp, "state"))
	assert.Equal(t, "req-1", resp.RequestID)

	code, resp = env.do(t, http.MethodGet, "/api/v1/focuser/position", "")
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_CONNECTED", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/connect", `{"port":"sim://a"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, simulator.DefaultVersion, dataField(t, resp, "version"))

	code, resp = env.do(t, http.MethodGet, "/api/v1/focuser/version", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, simulator.DefaultVersion, dataField(t, resp, "version"))

	code, resp = env.do(t, http.MethodGet, "/api/v1/focuser/position", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1000, dataField(t, resp, "position"))

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/position", `{"position":1500}`)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1500, dataField(t, resp, "position"))

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/step", `{"direction":"in","steps":100}`)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1400, dataField(t, resp, "position"))

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/step", `{"direction":"out"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1450, dataField(t, resp, "position"))

	code, _ = env.do(t, http.MethodPost, "/api/v1/focuser/disconnect", "")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, env.service.Connected())
}

func TestMoveValidation(t *testing.T) {
	env := newTestEnv(t)
	code, _ := env.do(t, http.MethodPost, "/api/v1/focuser/connect", `{"port":"sim://a"}`)
	require.Equal(t, http.StatusOK, code)

	code, resp := env.do(t, http.MethodPost, "/api/v1/focuser/position", `{"position":65000}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "OUT_OF_RANGE", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/position", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", resp.Error.Code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/focuser/step", `{"direction":"sideways","steps":10}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/step", `{"direction":"in","steps":70000}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "OUT_OF_RANGE", resp.Error.Code)
}

func TestPowerEndpoints(t *testing.T) {
	env := newTestEnv(t)
	dev, _ := env.reg.Device("sim://a")
	dev.SetPowerStatus("1212")
	code, _ := env.do(t, http.MethodPost, "/api/v1/focuser/connect", `{"port":"sim://a"}`)
	require.Equal(t, http.StatusOK, code)

	code, resp := env.do(t, http.MethodGet, "/api/v1/focuser/power", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataField(t, resp, "channel_1"))
	assert.Equal(t, false, dataField(t, resp, "channel_2"))

	code, resp = env.do(t, http.MethodPut, "/api/v1/focuser/power/2", `{"on":true}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, dataField(t, resp, "on"))
	assert.Equal(t, "1112", dev.PowerStatus())

	code, resp = env.do(t, http.MethodPut, "/api/v1/focuser/power/5", `{"on":true}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "OUT_OF_RANGE", resp.Error.Code)

	code, _ = env.do(t, http.MethodPut, "/api/v1/focuser/power/x", `{"on":true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	dev.SetPowerReply("1299")
	code, resp = env.do(t, http.MethodGet, "/api/v1/focuser/power", "")
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "PROTOCOL_ERROR", resp.Error.Code)
}

func TestConnectFailures(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodPost, "/api/v1/focuser/connect", `{"port":"sim://bad"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "PROBE_FAILED", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/connect", `{"port":"/dev/none"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "OPEN_FAILED", resp.Error.Code)

	code, resp = env.do(t, http.MethodPost, "/api/v1/focuser/connect", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "NO_PORT", resp.Error.Code)
}

func TestConnectChunkedBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/focuser/connect",
		io.MultiReader(strings.NewReader(`{"port":`), strings.NewReader(`"sim://a"}`)))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "sim://a", env.service.Status().Port)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/focuser/connect", strings.NewReader(`{"port":`))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscoveryEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, resp := env.do(t, http.MethodGet, "/api/v1/discovery/ports", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, dataField(t, resp, "ports_found"))

	code, resp = env.do(t, http.MethodPost, "/api/v1/discovery/scan", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, dataField(t, resp, "focusers_found"))
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.do(t, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, err := env.service.Connect(context.Background(), "sim://a")
	require.NoError(t, err)

	code, _ = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "healthy", health.Checks["focuser"].Status)
}

func TestEventWebSocket(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)

	_, err = env.service.Connect(context.Background(), "sim://a")
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "focuser_event", msg.Type)
	event, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(model.EventFocuserConnected), event["event_type"])
	assert.Equal(t, "sim://a", event["port"])

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{&robofocus.RangeError{Op: "goto", Value: 0, Max: model.MaxPosition}, http.StatusBadRequest, "OUT_OF_RANGE"},
		{&robofocus.ConnectionError{Kind: robofocus.ErrNotReady}, http.StatusConflict, "NOT_CONNECTED"},
		{&robofocus.ConnectionError{Kind: robofocus.ErrOpenFailed, Err: errors.New("busy")}, http.StatusBadGateway, "OPEN_FAILED"},
		{&robofocus.ConnectionError{Kind: robofocus.ErrProbeFailed, Err: &robofocus.ProtocolError{Kind: robofocus.ErrTooShort}}, http.StatusBadGateway, "PROBE_FAILED"},
		{&robofocus.ProtocolError{Kind: robofocus.ErrTooShort}, http.StatusGatewayTimeout, "DEVICE_TIMEOUT"},
		{&robofocus.ProtocolError{Kind: robofocus.ErrBadChecksum, Frame: []byte("FG0000001")}, http.StatusBadGateway, "PROTOCOL_ERROR"},
		{fmt.Errorf("scan: %w", context.Canceled), http.StatusServiceUnavailable, "CANCELLED"},
		{service.ErrNoFocuser, http.StatusNotFound, "NO_FOCUSER"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		status, code := classifyError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
