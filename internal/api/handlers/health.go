package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and version endpoints.
type HealthHandler struct {
	version string
	commit  string
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version, commit string) *HealthHandler {
	return &HealthHandler{version: version, commit: commit}
}

// RegisterPublicRoutes registers the unauthenticated routes.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/version", h.Version)
}

// Health reports liveness.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version reports build information.
func (h *HealthHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.version, "commit": h.commit})
}
