package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

type PublishHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

type PublishRequest struct {
	Topic string          `json:"topic" binding:"required"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type PublishResponse struct {
	Delivered int `json:"delivered"`
}

func NewPublishHandler(hubInstance *hub.Hub, logger logger.Logger) *PublishHandler {
	return &PublishHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "publish"),
	}
}

// Publish injects one event into the hub. Fan-out is detached from the
// request so a client hanging up mid-broadcast does not evict subscribers.
func (h *PublishHandler) Publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid publish request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid publish request"})
		return
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}
	if !h.hub.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": hub.ErrHubNotRunning.Error()})
		return
	}

	var payload any
	if len(req.Data) > 0 {
		payload = req.Data
	}

	delivered := h.hub.Broadcast(context.WithoutCancel(c.Request.Context()), topic, req.Event, payload)
	h.logger.Debugf("Published %s to %d connections", topic, delivered)

	c.JSON(http.StatusOK, PublishResponse{Delivered: delivered})
}
