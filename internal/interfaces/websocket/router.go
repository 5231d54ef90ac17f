package websocket

import (
	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	authenticator auth.Authenticator,
	opts Options,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, authenticator, opts, logger)
	rg.GET("/ws", wsHandler.Connect)
}
