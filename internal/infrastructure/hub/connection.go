package hub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConnectRequest carries what a transport handler knows about a new client.
type ConnectRequest struct {
	// ID is allocated with NewConnectionID when empty.
	ID        string
	Principal string
	Transport string
	Topics    []string
	Sink      Sink
}

// Connection is one live client stream. It is owned by the Hub; other
// packages only see ConnectionInfo copies.
type Connection struct {
	id        string
	principal string
	transport string
	sink      Sink

	// guarded by Hub.mu
	subscriptions map[string]struct{}

	connectedAt     time.Time
	lastHeartbeatAt atomic.Int64

	// writeMu orders id assignment and enqueue per connection.
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionInfo is a point-in-time copy of a connection's state.
type ConnectionInfo struct {
	ID              string    `json:"id"`
	Principal       string    `json:"principal,omitempty"`
	Transport       string    `json:"transport"`
	Topics          []string  `json:"topics"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at,omitzero"`
}

func NewConnectionID() string {
	return uuid.NewString()
}

func NewConnection(req ConnectRequest) *Connection {
	id := req.ID
	if id == "" {
		id = NewConnectionID()
	}
	c := &Connection{
		id:            id,
		principal:     req.Principal,
		transport:     req.Transport,
		sink:          req.Sink,
		subscriptions: make(map[string]struct{}, len(req.Topics)),
		connectedAt:   time.Now(),
		done:          make(chan struct{}),
	}
	for _, p := range normalizePatterns(req.Topics) {
		c.subscriptions[p] = struct{}{}
	}
	return c
}

func (c *Connection) ID() string { return c.id }

// Done is closed when the connection leaves the registry.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) send(ctx context.Context, seq *Sequencer, frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrSinkClosed
	default:
	}

	frame.ID = seq.Next()
	return c.sink.Send(ctx, &frame)
}

func (c *Connection) markClosed() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// patternsLocked copies the subscription set. Caller holds Hub.mu.
func (c *Connection) patternsLocked() []string {
	out := make([]string, 0, len(c.subscriptions))
	for p := range c.subscriptions {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *Connection) infoLocked() ConnectionInfo {
	info := ConnectionInfo{
		ID:          c.id,
		Principal:   c.principal,
		Transport:   c.transport,
		Topics:      c.patternsLocked(),
		ConnectedAt: c.connectedAt,
	}
	if ts := c.lastHeartbeatAt.Load(); ts > 0 {
		info.LastHeartbeatAt = time.Unix(0, ts)
	}
	return info
}

// ParseTopics splits a comma separated topic list as sent in a query string.
func ParseTopics(raw string) []string {
	if raw == "" {
		return nil
	}
	return normalizePatterns(strings.Split(raw, ","))
}

func normalizePatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
