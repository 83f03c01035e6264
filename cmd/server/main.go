// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"focuser-service/internal/bootstrap"
	"focuser-service/internal/config"
	"focuser-service/internal/handler"
	"focuser-service/internal/routes"
	"focuser-service/internal/service"
	"focuser-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	router *routes.Router

	eventBus       *handler.EventBus
	focuserService *service.FocuserService
}

var configPath string

func init() {
	flag.StringVar(&configPath, "config", configPath, "Path of the configuration file.")
}

func main() {
	flag.Parse()

	app, err := NewApplication(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication(path string) (*Application, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "focuser-service")
	serviceLogger.LogServiceStart(cfg.App.Version, cfg)

	app := &Application{
		config: cfg,
		logger: logger,
	}

	app.initializeServices()
	app.initializeServer()

	return app, nil
}

// initializeServices creates the event bus and the focuser service
func (app *Application) initializeServices() {
	app.eventBus = handler.NewEventBus(app.logger)
	go app.eventBus.Start()

	app.focuserService, _ = bootstrap.NewFocuserService(app.config, app.eventBus, app.logger)

	app.logger.Info("Services initialized successfully")
}

// initializeServer creates the HTTP server
func (app *Application) initializeServer() {
	app.router = routes.NewRouter(app.config, app.logger, app.focuserService, app.eventBus)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized", zap.String("address", app.config.GetServerAddr()))
}

// autoConnect connects the configured focuser, or the first one found. Failure
// leaves the service running without a focuser.
func (app *Application) autoConnect(ctx context.Context) {
	if !app.config.Focuser.AutoConnect {
		return
	}

	status, err := app.focuserService.AutoConnect(ctx)
	if err != nil {
		app.logger.Warn("Focuser auto-connect failed", zap.Error(err))
		return
	}
	app.logger.Info("Focuser auto-connected",
		zap.String("port", status.Port),
		zap.String("version", status.Version),
	)
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown(ctx context.Context) {
	<-ctx.Done()
	app.logger.Info("Received shutdown signal")
	app.shutdown()
}

// shutdown performs graceful shutdown
func (app *Application) shutdown() {
	serviceLogger := utils.NewServiceLogger(app.logger, "focuser-service")
	serviceLogger.LogServiceStop("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	if err := app.focuserService.Close(); err != nil {
		app.logger.Error("Focuser close error", zap.Error(err))
	} else {
		app.logger.Info("Focuser connection closed")
	}

	app.router.Close()
	app.eventBus.Stop()

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Fprintf(os.Stderr, "Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server until SIGINT or SIGTERM
func (app *Application) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		app.logger.Info("Starting HTTP server", zap.String("address", app.server.Addr))

		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	app.autoConnect(ctx)

	app.waitForShutdown(ctx)

	return nil
}
