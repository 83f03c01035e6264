// internal/handler/health_handler.go
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/service"
	"focuser-service/internal/utils"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	focuserService *service.FocuserService
	config         *config.Config
	startTime      time.Time
	logger         *utils.ServiceLogger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(focuserService *service.FocuserService, config *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		focuserService: focuserService,
		config:         config,
		startTime:      time.Now(),
		logger:         utils.NewServiceLogger(logger, "health-handler"),
	}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.ReadinessCheck)
	router.GET("/live", h.LivenessCheck)
}

// HealthCheck reports service health. A missing focuser degrades but does not fail the service.
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := h.focuserService.Status()

	health := &HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Service:   h.config.App.Name,
		Version:   h.config.App.Version,
		Uptime:    time.Since(h.startTime).String(),
		Checks:    make(map[string]CheckResult),
	}

	check := CheckResult{
		Status: "healthy",
		Data: map[string]interface{}{
			"port":    status.Port,
			"state":   status.State,
			"version": status.Version,
		},
	}
	if !h.focuserService.Connected() {
		health.Status = "degraded"
		check.Status = "disconnected"
		check.Message = "No focuser connected"
	}
	health.Checks["focuser"] = check

	c.JSON(http.StatusOK, health)
}

// ReadinessCheck reports ready once a focuser is connected
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is ready"
// @Failure 503 {object} object{status=string,reason=string} "Service is not ready"
// @Router /ready [get]
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if !h.focuserService.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "no focuser connected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now(),
	})
}

// LivenessCheck for Kubernetes liveness probe
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} object{status=string,timestamp=string} "Service is alive"
// @Router /live [get]
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
	})
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]CheckResult `json:"checks"`
}

// CheckResult represents individual check result
type CheckResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
