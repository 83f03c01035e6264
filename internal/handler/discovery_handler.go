// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focuser-service/internal/service"
	"focuser-service/internal/utils"
)

// DiscoveryHandler handles focuser discovery requests
type DiscoveryHandler struct {
	focuserService *service.FocuserService
	logger         *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(focuserService *service.FocuserService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		focuserService: focuserService,
		logger:         utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	discovery := router.Group("/discovery")
	{
		discovery.GET("/ports", h.ListPorts)
		discovery.POST("/scan", h.Scan)
	}
}

// ListPorts lists candidate ports without probing them
// @Summary List candidate ports
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /discovery/ports [get]
func (h *DiscoveryHandler) ListPorts(c *gin.Context) {
	ports := h.focuserService.ListPorts()
	utils.SuccessResponse(c, http.StatusOK, "Ports listed", gin.H{
		"ports_found": len(ports),
		"ports":       ports,
	})
}

// Scan probes every candidate port except the connected one
// @Summary Scan for focusers
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=object{focusers_found=int,focusers=[]model.DiscoveredFocuser}} "Scan completed"
// @Failure 503 {object} utils.APIResponse "Scan cancelled"
// @Router /discovery/scan [post]
func (h *DiscoveryHandler) Scan(c *gin.Context) {
	found, err := h.focuserService.Discover(c.Request.Context())
	if err != nil {
		utils.RequestLogger(c, h.logger.Logger).Warn("Focuser scan failed", zap.Error(err))
		focuserError(c, "Focuser scan failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Focuser scan completed", gin.H{
		"focusers_found": len(found),
		"focusers":       found,
	})
}
