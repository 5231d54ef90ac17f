package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/config"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
	v1 "go-realtime-gateway/internal/interfaces/rest/v1"
	"go-realtime-gateway/internal/interfaces/sse"
	"go-realtime-gateway/internal/interfaces/websocket"
)

func InitRouter(
	log logger.Logger,
	hubInstance *hub.Hub,
	authenticator auth.Authenticator,
	cfg *config.Config,
) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	rootGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rootGroup.GET("/hub/status", func(c *gin.Context) {
		stats := hubInstance.Stats()
		c.JSON(http.StatusOK, gin.H{
			"hub_running":   hubInstance.IsRunning(),
			"connections":   stats.Connections,
			"subscriptions": stats.Subscriptions,
		})
	})

	sse.InitSSERouter(log, hubInstance, authenticator, sse.Options{
		SendBuffer:   cfg.Hub.SendBuffer,
		WriteTimeout: cfg.Hub.WriteTimeout,
	}, rootGroup)

	websocket.InitWebSocketRouter(log, hubInstance, authenticator, websocket.Options{
		SendBuffer:   cfg.Hub.SendBuffer,
		WriteTimeout: cfg.Hub.WriteTimeout,
		PongTimeout:  2 * cfg.Hub.HeartbeatInterval,
	}, rootGroup)

	v1.InitStreamRouter(log, hubInstance, rootGroup)

	return router
}

// requestLogger logs one line per finished request. Streaming requests log
// when the stream ends.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	httpLog := log.WithField("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := httpLog.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
			"client":   c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	}
}
