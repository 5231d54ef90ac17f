package sse

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

// Options configures the SSE transport.
type Options struct {
	SendBuffer   int
	WriteTimeout time.Duration
}

type ServerSentEventHandler struct {
	hub    *hub.Hub
	auth   auth.Authenticator
	opts   Options
	logger logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	authenticator auth.Authenticator,
	opts Options,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:    hubInstance,
		auth:   authenticator,
		opts:   opts,
		logger: logger.WithField("handler", "sse"),
	}
}

// Connect opens an event stream subscribed to the comma separated "topics"
// query parameter and holds it until the client leaves or the hub drops it.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	ctx := c.Request.Context()
	principal := auth.Resolve(ctx, h.auth, auth.CredentialFromRequest(c.Request))

	sink := hub.NewQueueSink(h.opts.SendBuffer)
	conn := hub.NewConnection(hub.ConnectRequest{
		Principal: principal,
		Transport: "sse",
		Topics:    hub.ParseTopics(c.Query("topics")),
		Sink:      sink,
	})
	log := h.logger.WithField("connection_id", conn.ID())

	err := h.hub.Serve(ctx, conn, func(ctx context.Context) error {
		return h.stream(ctx, c.Writer, sink)
	})

	switch {
	case errors.Is(err, hub.ErrHubNotRunning):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
	case errors.Is(err, hub.ErrConnectionExists):
		log.Errorf("Connection id collision: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register connection"})
	case err != nil:
		log.Debugf("SSE stream ended: %v", err)
	default:
		log.Debug("SSE stream closed")
	}
}

// stream owns the response writer: it drains the sink until ctx ends, the
// sink closes or a write fails.
func (h *ServerSentEventHandler) stream(ctx context.Context, w gin.ResponseWriter, sink *hub.QueueSink) error {
	setupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	w.Flush()

	rc := http.NewResponseController(w)

	for {
		select {
		case frame := <-sink.Frames():
			if h.opts.WriteTimeout > 0 {
				// Best effort: not every ResponseWriter supports deadlines.
				_ = rc.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			}
			if err := sse.Encode(w, toEvent(frame)); err != nil {
				_ = sink.Close()
				return err
			}
			w.Flush()

		case <-sink.Closed():
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

func toEvent(f *hub.Frame) sse.Event {
	ev := sse.Event{
		Event: f.Event,
		Data:  f.Data,
	}
	if f.ID != 0 {
		ev.Id = strconv.FormatUint(f.ID, 10)
	}
	return ev
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // For nginx
}
