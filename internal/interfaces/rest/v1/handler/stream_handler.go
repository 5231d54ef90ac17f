package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

type StreamHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

type TopicsRequest struct {
	Topics []string `json:"topics" binding:"required"`
}

type SubscriptionsResponse struct {
	Subscriptions int `json:"subscriptions"`
}

func NewStreamHandler(hubInstance *hub.Hub, logger logger.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "stream"),
	}
}

func (h *StreamHandler) Subscribe(c *gin.Context) {
	h.changeTopics(c, "subscribe", h.hub.Subscribe)
}

func (h *StreamHandler) Unsubscribe(c *gin.Context) {
	h.changeTopics(c, "unsubscribe", h.hub.Unsubscribe)
}

func (h *StreamHandler) changeTopics(c *gin.Context, action string, apply func(string, ...string) (int, bool)) {
	id := c.Param("connectionId")

	var req TopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid %s request for %s: %v", action, id, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "topics must be a JSON array of strings"})
		return
	}

	count, ok := apply(id, req.Topics...)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	h.logger.WithFields(logger.Fields{
		"connection_id": id,
		"topics":        req.Topics,
	}).Debugf("Connection %sd", action)
	c.JSON(http.StatusOK, SubscriptionsResponse{Subscriptions: count})
}

// Close force-disconnects a stream. The transport handler observes the
// removal and returns.
func (h *StreamHandler) Close(c *gin.Context) {
	id := c.Param("connectionId")
	if !h.hub.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}
	h.logger.Infof("Connection %s closed via API", id)
	c.Status(http.StatusNoContent)
}

func (h *StreamHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

func (h *StreamHandler) Connections(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"connections": h.hub.Snapshot()})
}
