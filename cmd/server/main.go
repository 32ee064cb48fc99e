// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "escpos-service/docs"
	"escpos-service/internal/config"
	"escpos-service/internal/database"
	"escpos-service/internal/escpos"
	"escpos-service/internal/events"
	"escpos-service/internal/listener"
	"escpos-service/internal/metrics"
	"escpos-service/internal/protocol"
	"escpos-service/internal/repository"
	"escpos-service/internal/routes"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
	listener *listener.Server
	database *database.DB
	router   *routes.Router

	captureRepo    repository.CaptureRepository
	captureService *service.CaptureService
	relay          *protocol.Relay
	eventBus       *events.EventBus
	metrics        *metrics.Metrics

	stop chan struct{}
}

// @title ESC/POS Service API
// @version 1.0.0
// @description Decodes, captures and relays ESC/POS print jobs

// @contact.name ESC/POS Service API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8084
// @BasePath /api/v1
func main() {
	app, err := NewApplication()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		app.logger.Fatal("Failed to start application", zap.Error(err))
	}
}

// NewApplication creates a new application instance
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	serviceLogger := utils.NewServiceLogger(logger, "escpos-service")
	serviceLogger.LogServiceStart(cfg.App.Version,
		zap.String("environment", cfg.App.Environment),
		zap.String("listener_addr", cfg.GetListenerAddr()),
		zap.String("http_addr", cfg.GetServerAddr()),
		zap.Bool("printer_enabled", cfg.Printer.Enabled),
		zap.Bool("database_enabled", cfg.Database.Enabled),
		zap.String("command_table", escpos.TableVersion),
	)

	app := &Application{
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
		stop:    make(chan struct{}),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initializeServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return app, nil
}

// initializeStorage connects to the database and runs migrations, or
// falls back to in-memory capture storage
func (app *Application) initializeStorage() error {
	if !app.config.Database.Enabled {
		app.captureRepo = repository.NewMemoryCaptureRepository(app.config.Database.MemoryMaxRows, app.logger)
		app.logger.Info("Using in-memory capture storage",
			zap.Int("max_rows", app.config.Database.MemoryMaxRows),
		)
		return nil
	}

	db, err := database.NewConnection(&app.config.Database, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	app.database = db

	if app.config.Database.AutoMigrate {
		migrator := database.NewMigrator(db, app.logger)
		if err := migrator.Up(); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}

	app.captureRepo = repository.NewCaptureRepository(db, app.logger)
	app.logger.Info("Database initialized successfully")
	return nil
}

// initializeServices creates the relay, event bus, capture service and tap
// listener
func (app *Application) initializeServices() error {
	relay, err := protocol.NewRelay(&app.config.Printer, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create printer relay: %w", err)
	}
	app.relay = relay

	app.eventBus = events.NewEventBus(app.logger)

	app.captureService = service.NewCaptureService(
		app.captureRepo,
		app.relay,
		app.eventBus,
		app.metrics,
		app.config,
		app.logger,
	)

	app.listener = listener.NewServer(app.config, app.captureService, app.metrics, app.logger)

	app.logger.Info("Services initialized successfully")
	return nil
}

// initializeServer sets up HTTP server and routes
func (app *Application) initializeServer() error {
	app.router = routes.NewRouter(
		app.config,
		app.logger,
		app.database,
		app.captureService,
		app.relay,
		app.eventBus,
		app.metrics,
	)

	app.server = &http.Server{
		Addr:         app.config.GetServerAddr(),
		Handler:      app.router.SetupRouter(),
		ReadTimeout:  app.config.Server.ReadTimeout,
		WriteTimeout: app.config.Server.WriteTimeout,
		IdleTimeout:  app.config.Server.IdleTimeout,
	}

	app.logger.Info("HTTP server initialized",
		zap.String("address", app.config.GetServerAddr()),
		zap.Bool("tls_enabled", app.config.Server.TLS.Enabled),
	)

	return nil
}

// startBackgroundServices starts background services
func (app *Application) startBackgroundServices() {
	go app.eventBus.Start()
	go app.startCleanupService()

	app.logger.Info("Background services started")
}

// startCleanupService deletes captures past their retention
func (app *Application) startCleanupService() {
	interval := app.config.Capture.CleanupInterval
	if interval <= 0 || app.config.Capture.Retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	app.logger.Info("Cleanup service started",
		zap.Duration("interval", interval),
		zap.Duration("retention", app.config.Capture.Retention),
	)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := app.captureService.Cleanup(ctx); err != nil {
				app.logger.Error("Failed to cleanup old captures", zap.Error(err))
			}
			cancel()
		case <-app.stop:
			return
		}
	}
}

// waitForShutdown waits for shutdown signal and performs graceful shutdown
func (app *Application) waitForShutdown(errs <-chan error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		app.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		app.shutdown("shutdown signal received")
	case err := <-errs:
		app.logger.Error("Server failed", zap.Error(err))
		app.shutdown("server failure")
	}
}

// shutdown performs graceful shutdown
func (app *Application) shutdown(reason string) {
	serviceLogger := utils.NewServiceLogger(app.logger, "escpos-service")
	serviceLogger.LogServiceStop(reason)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop taking print jobs first so in-flight ones still reach the printer.
	if err := app.listener.Shutdown(ctx); err != nil {
		app.logger.Error("Listener shutdown error", zap.Error(err))
	} else {
		app.logger.Info("Listener stopped")
	}

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		app.logger.Info("HTTP server stopped")
	}

	close(app.stop)
	app.router.Close()
	app.eventBus.Stop()

	if app.database != nil {
		if err := app.database.Close(); err != nil {
			app.logger.Error("Database close error", zap.Error(err))
		} else {
			app.logger.Info("Database connection closed")
		}
	}

	app.logger.Info("Application shutdown completed")

	if err := utils.CloseLogger(app.logger); err != nil {
		fmt.Printf("Logger close error: %v\n", err)
	}
}

// Start runs the HTTP server and the tap listener until a shutdown signal
func (app *Application) Start() error {
	errs := make(chan error, 2)

	go func() {
		app.logger.Info("Starting HTTP server",
			zap.String("address", app.server.Addr),
		)

		var err error
		if app.config.Server.TLS.Enabled {
			err = app.server.ListenAndServeTLS(
				app.config.Server.TLS.CertFile,
				app.config.Server.TLS.KeyFile,
			)
		} else {
			err = app.server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := app.listener.ListenAndServe(); err != nil && !errors.Is(err, listener.ErrServerClosed) {
			errs <- fmt.Errorf("tap listener: %w", err)
		}
	}()

	app.startBackgroundServices()

	app.waitForShutdown(errs)

	return nil
}
