package hub

import (
	"encoding/json"
	"time"
)

// Event names written on the wire.
const (
	EventConnected = "connected"
	EventPing      = "ping"
	EventMessage   = "message"
	EventAck       = "ack"
	EventError     = "error"
)

// Frame is one unit written to a connection's sink. ID is assigned by the
// hub at delivery time and is zero until then.
type Frame struct {
	ID    uint64 `json:"id,omitempty"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Envelope wraps a published payload with the topic it was published on.
type Envelope struct {
	Topic     string `json:"topic"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// ConnectedData is the body of the greeting frame.
type ConnectedData struct {
	ConnectionID  string   `json:"connection_id"`
	Topics        []string `json:"topics"`
	Authenticated bool     `json:"authenticated"`
	Timestamp     int64    `json:"timestamp"`
}

// AckData answers a subscribe or unsubscribe control message.
type AckData struct {
	Action        string   `json:"action"`
	Topics        []string `json:"topics"`
	Subscriptions int      `json:"subscriptions"`
}

func EventFrame(event, topic string, payload any) Frame {
	if event == "" {
		event = EventMessage
	}
	return Frame{
		Event: event,
		Data: Envelope{
			Topic:     topic,
			Data:      payload,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

func ConnectedFrame(connID string, topics []string, authenticated bool) Frame {
	if topics == nil {
		topics = []string{}
	}
	return Frame{
		Event: EventConnected,
		Data: ConnectedData{
			ConnectionID:  connID,
			Topics:        topics,
			Authenticated: authenticated,
			Timestamp:     time.Now().UnixMilli(),
		},
	}
}

func PingFrame() Frame {
	return Frame{
		Event: EventPing,
		Data:  map[string]int64{"timestamp": time.Now().UnixMilli()},
	}
}

func AckFrame(action string, topics []string, subscriptions int) Frame {
	return Frame{
		Event: EventAck,
		Data: AckData{
			Action:        action,
			Topics:        topics,
			Subscriptions: subscriptions,
		},
	}
}

func ErrorFrame(code, message string) Frame {
	return Frame{
		Event: EventError,
		Data:  map[string]string{"code": code, "message": message},
	}
}

// RawPayload returns b as json.RawMessage when it holds valid JSON, and as a
// string otherwise, so opaque broker payloads survive re-encoding untouched.
func RawPayload(b []byte) any {
	if len(b) > 0 && json.Valid(b) {
		return json.RawMessage(append([]byte(nil), b...))
	}
	return string(b)
}
