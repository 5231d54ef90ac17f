package sse

import (
	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	authenticator auth.Authenticator,
	opts Options,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, authenticator, opts, logger)
	rg.GET("/sse", sseHandler.Connect)
}
