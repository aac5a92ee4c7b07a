package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiln_console/internal/logger"
	"kiln_console/internal/service"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	hub      *Hub
	gatherer prometheus.Gatherer
}

type Option func(*Handler)

// WithHub sets the hub that pushes telemetry views to /ws clients.
func WithHub(hub *Hub) Option { return func(h *Handler) { h.hub = hub } }

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option { return func(h *Handler) { h.gatherer = g } }

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{services: services, log: logger.OrNop(log), gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(h)
	}
	if h.hub == nil {
		h.hub = NewHub(h.log)
	}
	return h
}

// InitRoutes builds the console router: the telemetry read model, its
// WebSocket push, health and metrics.
func (h *Handler) InitRoutes() *gin.Engine {
	router := h.newRouter()
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		h.registerTelemetryRoutes(api)
	}

	router.GET("/ws", h.wsConnect)
	return router
}

// InitControlUnitRoutes builds the simulated control unit router.
func (h *Handler) InitControlUnitRoutes() *gin.Engine {
	router := h.newRouter()
	h.registerEngineRoutes(router)
	return router
}

func (h *Handler) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)
	return router
}

func (h *Handler) registerTelemetryRoutes(api *gin.RouterGroup) {
	tel := api.Group("/telemetry")
	{
		tel.GET("", h.getTelemetry)
		tel.GET("/csv", h.getTelemetryCSV)
		tel.GET("/status", h.getTelemetryStatus)
		tel.POST("/refresh", h.refreshTelemetry)
	}
}

func (h *Handler) registerEngineRoutes(r *gin.Engine) {
	running := r.Group("/engine/running")
	{
		running.GET("", h.getRunning)
		// Body example: {"name":"pine","steps":[{"name":"Heat","type":"heating","temperature_target":60}]}
		running.POST("", h.startProgram)
		running.DELETE("", h.cancelProgram)
		running.GET("/log", h.getRunningLog)
		running.GET("/logws", h.streamRunningLog)
	}
}
