package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/irrigation-assistant/internal/infra/config"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
)

const healthPath = "/healthz"

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, collector *metrics.Collector, logger *slog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(logger, collector),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		errorHandlingMiddleware(logger),
		rateLimitMiddleware(cfg.HTTP.RateLimit, logger, healthPath, cfg.Metrics.Path),
	)

	router.GET(healthPath, handler.Health)
	if cfg.Metrics.Enabled && collector != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(collector.Handler()))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/irrigation/decision", handler.Decide)
		api.POST("/irrigation/sufficiency", handler.Sufficiency)
		api.GET("/weather/forecast", handler.Forecast)

		chat := api.Group("/chat/sessions")
		chat.POST("", handler.CreateSession)
		chat.GET("/:id/messages", handler.ListMessages)
		chat.POST("/:id/messages", handler.PostMessage)
		chat.POST("/:id/messages/stream", handler.StreamMessage)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}
