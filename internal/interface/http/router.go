package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/cashtags/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        newEngineHandler(cfg, handler, logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func newEngineHandler(cfg *config.Config, handler *Handler, logger *slog.Logger) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	logger = logger.With("component", "http.router")

	router := gin.New()
	router.Use(
		recoveryMiddleware(logger),
		requestIDMiddleware(),
		requestLogger(logger),
		errorHandlingMiddleware(logger),
	)

	router.GET("/healthz", handler.Health)
	router.GET("/ws/tape", handler.TapeSocket)

	requireAuth := authMiddleware(handler.authSvc)
	limit := tieredRateLimitMiddleware(cfg.HTTP.RateLimit, handler.subscriptionSvc, logger)

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		authRoutes.POST("/register", handler.Register)
		authRoutes.POST("/login", handler.Login)
		authRoutes.POST("/refresh", handler.Refresh)
		authRoutes.GET("/google/login", handler.GoogleLogin)
		authRoutes.GET("/google/callback", handler.GoogleCallback)
		authRoutes.GET("/me", requireAuth, handler.Profile)
		authRoutes.POST("/logout", requireAuth, handler.Logout)

		api.GET("/tape", handler.Tape)
		api.GET("/trending", handler.Trending)
		api.GET("/:ticker/topic-posts", handler.TopicPosts)

		api.GET("/subscription", requireAuth, handler.SubscriptionStatus)
		api.POST("/ticker-click", requireAuth, handler.TickerClick)

		limited := api.Group("", requireAuth, limit)
		limited.POST("/summary", handler.SummarizeStream)
		limited.POST("/summary/sync", handler.Summarize)
		limited.GET("/summary/:subject/latest", handler.LatestSummary)
		limited.GET("/:ticker/overview", handler.Overview)
		limited.GET("/:ticker/series", handler.Series)
		limited.GET("/:ticker/ticker", handler.Bars)
		limited.GET("/:ticker/news", handler.News)
		limited.GET("/:ticker/snapshot", handler.Snapshot)
	}

	return withCORS(withRetry(router, cfg.HTTP.Retry, logger), cfg.HTTP.CORSOrigins)
}
