// Package api provides the HTTP API for the licsync server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/api/handlers"
	"github.com/licsync/licsync/internal/api/middleware"
)

// Config holds configuration for the API router.
type Config struct {
	// NodeKeys are the API keys accepted from enforcement nodes.
	NodeKeys []string
	// Version information for the version endpoint.
	Version string
	Commit  string
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg Config, service handlers.SyncService, logger zerolog.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.Commit)
	healthHandler.RegisterPublicRoutes(r.Engine)

	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.APIKeyAuth(cfg.NodeKeys, logger))

	syncHandler := handlers.NewSyncHandler(service, logger)
	syncHandler.RegisterRoutes(apiV1)

	return r
}
