package v1

import (
	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
	"go-realtime-gateway/internal/interfaces/rest/v1/handler"
)

func InitStreamRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	rg *gin.RouterGroup,
) {
	streamHandler := handler.NewStreamHandler(hubInstance, logger)
	publishHandler := handler.NewPublishHandler(hubInstance, logger)

	v1 := rg.Group("/api/v1")
	{
		stream := v1.Group("/stream")
		stream.GET("/stats", streamHandler.Stats)
		stream.GET("/connections", streamHandler.Connections)
		stream.POST("/:connectionId/subscribe", streamHandler.Subscribe)
		stream.POST("/:connectionId/unsubscribe", streamHandler.Unsubscribe)
		stream.DELETE("/:connectionId", streamHandler.Close)

		v1.POST("/publish", publishHandler.Publish)
	}
}
