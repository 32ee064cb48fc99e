// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/database"
	"escpos-service/internal/escpos"
	"escpos-service/internal/events"
	"escpos-service/internal/handler"
	"escpos-service/internal/metrics"
	"escpos-service/internal/middleware"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config         *config.Config
	logger         *zap.Logger
	db             *database.DB
	captureService *service.CaptureService
	relay          handler.RelayStatus
	bus            *events.EventBus
	metrics        *metrics.Metrics

	wsHandler *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil when captures are
// kept in memory.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	captureService *service.CaptureService,
	relay handler.RelayStatus,
	bus *events.EventBus,
	m *metrics.Metrics,
) *Router {
	return &Router{
		config:         config,
		logger:         logger,
		db:             db,
		captureService: captureService,
		relay:          relay,
		bus:            bus,
		metrics:        m,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.IsDebugEnabled() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// Close releases the WebSocket clients held by the router
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
	router.Use(middleware.LoggingMiddleware(serviceLogger, r.metrics))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Debug("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.relay, r.config, r.logger)
	decodeHandler := handler.NewDecodeHandler(r.captureService, r.config.Listener.MaxJobSize, r.logger)
	commandHandler := handler.NewCommandHandler(escpos.DefaultTable())
	captureHandler := handler.NewCaptureHandler(r.captureService, r.logger)
	printerHandler := handler.NewPrinterHandler(r.relay, r.logger)

	// Health check routes
	healthHandler.RegisterRoutes(&router.RouterGroup)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	decodeHandler.RegisterRoutes(apiV1)
	commandHandler.RegisterRoutes(apiV1)
	captureHandler.RegisterRoutes(apiV1)
	printerHandler.RegisterRoutes(apiV1)

	// WebSocket routes
	if r.bus != nil {
		r.wsHandler = handler.NewWebSocketHandler(r.bus, r.config.Security.AllowedOrigins, r.logger)
		r.wsHandler.RegisterRoutes(router.Group("/ws"))
		apiV1.GET("/ws/stats", func(c *gin.Context) {
			utils.SuccessResponse(c, http.StatusOK, "WebSocket connections", r.wsHandler.GetConnectionStats())
		})
	}

	// Metrics
	if r.config.Metrics.Enabled && r.metrics != nil {
		router.GET(r.config.Metrics.Path, gin.WrapH(r.metrics.Handler()))
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
