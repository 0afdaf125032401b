package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wireboard-server/internal/config"
	"github.com/vovakirdan/wireboard-server/internal/core"
	"github.com/vovakirdan/wireboard-server/internal/metrics"
	"github.com/vovakirdan/wireboard-server/internal/store"
	"github.com/vovakirdan/wireboard-server/internal/upload"
)

// Services are the collaborators the HTTP layer routes to.
type Services struct {
	Registry    *core.Registry
	Broadcaster *core.Broadcaster
	Store       store.Store
	Uploads     *upload.Service // nil when uploads are disabled
	Metrics     *metrics.Metrics
}

// NewServer builds an HTTP server with all routes.
func NewServer(svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(svc Services, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.CORSAllowOrigins))

	ws := NewWSHandler(core.SessionDeps{
		Registry:     svc.Registry,
		Broadcaster:  svc.Broadcaster,
		Store:        svc.Store,
		HistoryLimit: cfg.HistoryLimit,
		Metrics:      svc.Metrics,
		Logger:       logger,
	}, WSOptions{
		MaxMessageBytes:   cfg.MaxMessageBytes,
		PingInterval:      cfg.PingInterval,
		MessagesPerMinute: cfg.MessagesPerMinute,
		AllowedOrigins:    cfg.CORSAllowOrigins,
	}, logger)
	rooms := NewRoomHandlers(svc.Store, svc.Registry, logger)
	uploads := NewUploadHandlers(svc.Uploads, logger)
	health := &healthHandlers{store: svc.Store, log: logger}

	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	router.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	router.GET("/ws/:room_id/:user_id", ws.Handle)

	api := router.Group("/api")
	{
		api.GET("/rooms", rooms.ListRooms)
		api.POST("/rooms", rooms.CreateRoom)
		api.GET("/rooms/active", rooms.ActiveRooms)
		api.GET("/rooms/:room_id/messages", rooms.Messages)
		api.GET("/rooms/:room_id/drawing-actions", rooms.DrawingActions)
		api.POST("/upload", uploads.Upload)
		api.GET("/files/*key", uploads.File)
	}

	return router
}

type healthHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// Health reports liveness.
// GET /health
func (h *healthHandlers) Health(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings the persistence gateway.
// GET /ready
func (h *healthHandlers) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Error().Err(err).Msg("readiness check failed")
		c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
