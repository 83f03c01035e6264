// internal/handler/focuser_handler.go
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focuser-service/internal/model"
	"focuser-service/internal/service"
	"focuser-service/internal/utils"
	"focuser-service/pkg/driver"
)

// FocuserHandler handles focuser command requests
type FocuserHandler struct {
	focuserService *service.FocuserService
	logger         *utils.ServiceLogger
}

// NewFocuserHandler creates a new focuser handler
func NewFocuserHandler(focuserService *service.FocuserService, logger *zap.Logger) *FocuserHandler {
	return &FocuserHandler{
		focuserService: focuserService,
		logger:         utils.NewServiceLogger(logger, "focuser-handler"),
	}
}

// ConnectRequest selects the port to open. An empty port uses the configured one.
type ConnectRequest struct {
	Port string `json:"port"`
}

// GotoRequest is an absolute move
type GotoRequest struct {
	Position *int `json:"position" binding:"required"`
}

// StepRequest is a relative move. Zero steps uses the configured default.
type StepRequest struct {
	Direction string `json:"direction" binding:"required,oneof=in out"`
	Steps     int    `json:"steps" binding:"min=0"`
}

// PowerRequest switches one remote power output
type PowerRequest struct {
	On *bool `json:"on" binding:"required"`
}

// RegisterRoutes registers focuser routes
func (h *FocuserHandler) RegisterRoutes(router *gin.RouterGroup) {
	focuser := router.Group("/focuser")
	{
		focuser.GET("", h.GetStatus)
		focuser.POST("/connect", h.Connect)
		focuser.POST("/disconnect", h.Disconnect)
		focuser.GET("/version", h.GetVersion)
		focuser.GET("/position", h.GetPosition)
		focuser.POST("/position", h.Goto)
		focuser.POST("/step", h.Step)
		focuser.GET("/power", h.GetPower)
		focuser.PUT("/power/:channel", h.SetPower)
	}
}

// GetStatus returns the last known focuser state
// @Summary Focuser status
// @Tags Focuser
// @Produce json
// @Success 200 {object} utils.APIResponse{data=model.FocuserStatus}
// @Router /focuser [get]
func (h *FocuserHandler) GetStatus(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Focuser status retrieved", h.focuserService.Status())
}

// Connect opens a focuser port
// @Summary Connect focuser
// @Tags Focuser
// @Accept json
// @Produce json
// @Param request body ConnectRequest false "Port to open"
// @Success 200 {object} utils.APIResponse{data=model.FocuserStatus}
// @Failure 502 {object} utils.APIResponse "Port could not be opened or no focuser answered"
// @Router /focuser/connect [post]
func (h *FocuserHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	// An empty body selects the configured port
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	status, err := h.focuserService.Connect(c.Request.Context(), req.Port)
	if err != nil {
		utils.RequestLogger(c, h.logger.Logger).Warn("Failed to connect focuser", zap.String("port", req.Port), zap.Error(err))
		focuserError(c, "Failed to connect focuser", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Focuser connected", status)
}

// Disconnect closes the focuser port
// @Summary Disconnect focuser
// @Tags Focuser
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /focuser/disconnect [post]
func (h *FocuserHandler) Disconnect(c *gin.Context) {
	if err := h.focuserService.Disconnect(); err != nil {
		utils.RequestLogger(c, h.logger.Logger).Error("Failed to disconnect focuser", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to disconnect focuser", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Focuser disconnected", nil)
}

// GetVersion queries the firmware version
func (h *FocuserHandler) GetVersion(c *gin.Context) {
	version, err := h.focuserService.Version(c.Request.Context())
	if err != nil {
		focuserError(c, "Failed to query version", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Version retrieved", gin.H{"version": version})
}

// GetPosition queries the current position
func (h *FocuserHandler) GetPosition(c *gin.Context) {
	pos, err := h.focuserService.Position(c.Request.Context())
	if err != nil {
		focuserError(c, "Failed to query position", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Position retrieved", gin.H{"position": pos})
}

// Goto moves to an absolute position
// @Summary Move to position
// @Tags Focuser
// @Accept json
// @Produce json
// @Param request body GotoRequest true "Target position, 0 < position < 65000"
// @Success 200 {object} utils.APIResponse "Move completed"
// @Failure 400 {object} utils.APIResponse "Position out of range"
// @Failure 409 {object} utils.APIResponse "No focuser connected"
// @Router /focuser/position [post]
func (h *FocuserHandler) Goto(c *gin.Context) {
	var req GotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pos, err := h.focuserService.Goto(c.Request.Context(), *req.Position)
	if err != nil {
		focuserError(c, "Move failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Move completed", gin.H{"position": pos})
}

// Step moves by a number of steps
// @Summary Relative move
// @Tags Focuser
// @Accept json
// @Produce json
// @Param request body StepRequest true "Direction and step count"
// @Success 200 {object} utils.APIResponse "Move completed"
// @Router /focuser/step [post]
func (h *FocuserHandler) Step(c *gin.Context) {
	var req StepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	dir, err := driver.ParseDirection(req.Direction)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid direction", err)
		return
	}

	pos, err := h.focuserService.Step(c.Request.Context(), dir, req.Steps)
	if err != nil {
		focuserError(c, "Move failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Move completed", gin.H{"position": pos})
}

// GetPower queries the remote power outputs
func (h *FocuserHandler) GetPower(c *gin.Context) {
	state, err := h.focuserService.Power(c.Request.Context())
	if err != nil {
		focuserError(c, "Failed to query remote power", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Remote power retrieved", state)
}

// SetPower switches one output. Channels are numbered 1 to 4.
// @Summary Switch remote power
// @Tags Focuser
// @Accept json
// @Produce json
// @Param channel path int true "Channel, 1-4"
// @Param request body PowerRequest true "Requested state"
// @Success 200 {object} utils.APIResponse "State reported by the focuser"
// @Router /focuser/power/{channel} [put]
func (h *FocuserHandler) SetPower(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("channel"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid channel", err)
		return
	}

	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	channel := model.PowerChannel(n - 1)
	on, err := h.focuserService.SetPower(c.Request.Context(), channel, *req.On)
	if err != nil {
		focuserError(c, "Failed to switch remote power", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Remote power switched", gin.H{
		"channel":   n,
		"requested": *req.On,
		"on":        on,
	})
}
