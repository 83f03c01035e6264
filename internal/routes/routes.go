// internal/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"focuser-service/internal/config"
	"focuser-service/internal/handler"
	"focuser-service/internal/middleware"
	"focuser-service/internal/service"
	"focuser-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	focuserService *service.FocuserService
	eventBus       *handler.EventBus
	wsHandler      *handler.WebSocketHandler
}

// NewRouter creates a new router instance
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	focuserService *service.FocuserService,
	eventBus *handler.EventBus,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		focuserService: focuserService,
		eventBus:       eventBus,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.App.Environment == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// Close disconnects WebSocket clients
func (r *Router) Close() {
	if r.wsHandler != nil {
		r.wsHandler.Close()
	}
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.focuserService, r.config, r.logger)
	focuserHandler := handler.NewFocuserHandler(r.focuserService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.focuserService, r.logger)
	r.wsHandler = handler.NewWebSocketHandler(r.focuserService, r.eventBus, r.config.Security.AllowedOrigins, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(&router.RouterGroup)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	focuserHandler.RegisterRoutes(apiV1)
	discoveryHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	r.wsHandler.RegisterRoutes(router.Group("/ws"))

	r.logger.Info("All routes configured successfully")
}
