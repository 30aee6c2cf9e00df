// Package handlers contains the HTTP handlers for the licsync API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/licsync/licsync/internal/metrics"
	"github.com/licsync/licsync/internal/models"
)

// SyncService arbitrates and fulfills a node sync request.
type SyncService interface {
	ServiceRequest(ctx context.Context, req models.SyncRequest) models.SyncResponse
}

// SyncHandler serves the node sync endpoint.
type SyncHandler struct {
	service SyncService
	logger  zerolog.Logger
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(service SyncService, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		service: service,
		logger:  logger.With().Str("component", "sync_handler").Logger(),
	}
}

// RegisterRoutes registers the sync route on an authenticated group.
func (h *SyncHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sync", h.Sync)
}

// Sync handles a node poll. A malformed body is a client error; every
// server-side failure inside the service degrades to a no-update
// response, so this handler only ever answers 200 or 400.
func (h *SyncHandler) Sync(c *gin.Context) {
	var req models.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Debug().Err(err).Msg("malformed sync request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	resp := h.service.ServiceRequest(c.Request.Context(), req)

	metrics.SyncRequests.Inc()
	if resp.HasUpdate() {
		metrics.SyncPayloads.Inc()
		metrics.SyncPayloadBytes.Add(float64(len(resp.Payload)))
	}

	c.JSON(http.StatusOK, resp)
}
