package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

const maxControlMessage = 4096

var errConnectionGone = errors.New("connection no longer registered")

// ControlMessage is what clients send to change their subscriptions.
type ControlMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// registry is the part of the hub a client needs for control messages.
type registry interface {
	Subscribe(id string, patterns ...string) (int, bool)
	Unsubscribe(id string, patterns ...string) (int, bool)
	Send(ctx context.Context, id string, frame hub.Frame) error
}

type client struct {
	ws     *websocket.Conn
	id     string
	sink   *hub.QueueSink
	hub    registry
	opts   Options
	logger logger.Logger
}

func newClient(ws *websocket.Conn, id string, sink *hub.QueueSink, reg registry, opts Options, log logger.Logger) *client {
	return &client{
		ws:     ws,
		id:     id,
		sink:   sink,
		hub:    reg,
		opts:   opts,
		logger: log,
	}
}

// run is the hub.Pump for a WebSocket: the write pump runs here, the read
// pump in its own goroutine, and both are gone when run returns.
func (c *client) run(ctx context.Context) error {
	readDone := make(chan error, 1)
	go func() {
		readDone <- c.readPump(ctx)
	}()

	readFinished, err := c.writePump(ctx, readDone)
	if readFinished {
		_ = c.ws.Close()
		return err
	}

	// The peer may still be listening; say goodbye, then wait for the reader
	// to notice the closed socket.
	c.closeWith(websocket.CloseNormalClosure, "")
	<-readDone
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *client) writePump(ctx context.Context, readDone <-chan error) (readFinished bool, err error) {
	ticker := time.NewTicker(c.opts.PongTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.sink.Frames():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteJSON(frame); err != nil {
				_ = c.sink.Close()
				return false, fmt.Errorf("write frame: %w", err)
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.sink.Close()
				return false, fmt.Errorf("write ping: %w", err)
			}

		case err := <-readDone:
			_ = c.sink.Close()
			return true, err

		case <-c.sink.Closed():
			return false, nil

		case <-ctx.Done():
			return false, nil
		}
	}
}

// readPump handles control messages until the peer goes away.
func (c *client) readPump(ctx context.Context) error {
	c.ws.SetReadLimit(maxControlMessage)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debugf("WebSocket read error: %v", err)
			}
			return nil
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handleControl(ctx, data); err != nil {
			return err
		}
	}
}

func (c *client) handleControl(ctx context.Context, data []byte) error {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return c.reply(ctx, hub.ErrorFrame("invalid_message", "control messages must be JSON"))
	}

	var (
		count int
		ok    bool
	)
	switch msg.Action {
	case "subscribe":
		count, ok = c.hub.Subscribe(c.id, msg.Topics...)
	case "unsubscribe":
		count, ok = c.hub.Unsubscribe(c.id, msg.Topics...)
	default:
		return c.reply(ctx, hub.ErrorFrame("unknown_action", fmt.Sprintf("unknown action %q", msg.Action)))
	}
	if !ok {
		return errConnectionGone
	}
	return c.reply(ctx, hub.AckFrame(msg.Action, msg.Topics, count))
}

func (c *client) reply(ctx context.Context, frame hub.Frame) error {
	if err := c.hub.Send(ctx, c.id, frame); err != nil {
		if errors.Is(err, hub.ErrConnectionNotFound) {
			return errConnectionGone
		}
		return err
	}
	return nil
}

func (c *client) closeWith(code int, text string) {
	deadline := time.Now().Add(c.opts.WriteTimeout)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = c.ws.Close()
}
