package websocket

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

// Options configures the WebSocket transport.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
}

// WebSocketHandler handles WebSocket connections and messages
type WebSocketHandler struct {
	hub      *hub.Hub
	auth     auth.Authenticator
	opts     Options
	logger   logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	authenticator auth.Authenticator,
	opts Options,
	logger logger.Logger,
) *WebSocketHandler {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = 60 * time.Second
	}
	return &WebSocketHandler{
		hub:    hubInstance,
		auth:   authenticator,
		opts:   opts,
		logger: logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Topic authorization happens before subscribe; origin is not a
			// trust boundary for this endpoint.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect upgrades the request and serves the connection until either side
// closes it.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	principal := auth.Resolve(c.Request.Context(), h.auth, auth.CredentialFromRequest(c.Request))
	topics := hub.ParseTopics(c.Query("topics"))

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("Failed to upgrade connection: %v", err)
		return
	}

	sink := hub.NewQueueSink(h.opts.SendBuffer)
	conn := hub.NewConnection(hub.ConnectRequest{
		Principal: principal,
		Transport: "websocket",
		Topics:    topics,
		Sink:      sink,
	})

	client := newClient(ws, conn.ID(), sink, h.hub, h.opts, h.logger.WithField("connection_id", conn.ID()))

	err = h.hub.Serve(c.Request.Context(), conn, client.run)
	if errors.Is(err, hub.ErrConnectionExists) || errors.Is(err, hub.ErrHubNotRunning) {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		client.closeWith(websocket.CloseInternalServerErr, "registration failed")
		return
	}
	if err != nil {
		client.logger.Debugf("WebSocket connection ended: %v", err)
	}
}
