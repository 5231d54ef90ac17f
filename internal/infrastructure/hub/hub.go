package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go-realtime-gateway/internal/infrastructure/logger"
)

var (
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrConnectionExists   = errors.New("connection already registered")
	ErrConnectionNotFound = errors.New("connection not found")
)

// Options tunes liveness and delivery.
type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	FanoutWorkers     int
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      5 * time.Second,
		FanoutWorkers:     32,
	}
}

// Stats summarises the registry.
type Stats struct {
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// Hub is the connection registry shared by the broadcast engine, the
// liveness monitor and the transport handlers.
type Hub struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	seq    Sequencer
	opts   Options
	logger logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Hub instance
func New(log logger.Logger, opts Options) *Hub {
	def := DefaultOptions()
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = def.HeartbeatInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.FanoutWorkers <= 0 {
		opts.FanoutWorkers = def.FanoutWorkers
	}
	return &Hub{
		connections: make(map[string]*Connection),
		opts:        opts,
		logger:      log.WithField("component", "hub"),
	}
}

// Start launches the liveness monitor.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	rctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(rctx)
	}()

	h.logger.Infof("Hub started (heartbeat every %s)", h.opts.HeartbeatInterval)
	return nil
}

// Stop halts the liveness monitor and removes every connection, which
// releases their lifecycle handlers.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	if !h.running {
		h.runningMu.Unlock()
		return nil
	}
	h.running = false
	h.cancel()
	h.runningMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("stop hub: %w", ctx.Err())
	}

	for _, c := range h.drain() {
		h.release(c)
	}

	h.logger.Info("Hub stopped")
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// Register inserts a fully built connection. Registration is atomic with
// respect to broadcasts: the connection is visible with its whole initial
// subscription set or not at all.
func (h *Hub) Register(conn *Connection) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}

	h.mu.Lock()
	if _, exists := h.connections[conn.id]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConnectionExists, conn.id)
	}
	h.connections[conn.id] = conn
	n := len(conn.subscriptions)
	h.mu.Unlock()

	h.logger.Infof("Connection %s registered (transport: %s, topics: %d)", conn.id, conn.transport, n)
	return nil
}

// Remove drops a connection. Removing an unknown id is a no-op.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	conn, exists := h.connections[id]
	if exists {
		delete(h.connections, id)
	}
	h.mu.Unlock()

	if !exists {
		return false
	}
	h.release(conn)
	h.logger.Infof("Connection %s removed", id)
	return true
}

// Get returns a copy of the connection's state.
func (h *Hub) Get(id string) (ConnectionInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conn, exists := h.connections[id]
	if !exists {
		return ConnectionInfo{}, false
	}
	return conn.infoLocked(), true
}

// Subscribe adds patterns to a connection and returns its subscription
// count. ok is false when the connection no longer exists.
func (h *Hub) Subscribe(id string, patterns ...string) (count int, ok bool) {
	patterns = normalizePatterns(patterns)

	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[id]
	if !exists {
		return 0, false
	}
	for _, p := range patterns {
		conn.subscriptions[p] = struct{}{}
	}
	return len(conn.subscriptions), true
}

// Unsubscribe removes patterns from a connection and returns its
// subscription count. ok is false when the connection no longer exists.
func (h *Hub) Unsubscribe(id string, patterns ...string) (count int, ok bool) {
	patterns = normalizePatterns(patterns)

	h.mu.Lock()
	defer h.mu.Unlock()

	conn, exists := h.connections[id]
	if !exists {
		return 0, false
	}
	for _, p := range patterns {
		delete(conn.subscriptions, p)
	}
	return len(conn.subscriptions), true
}

// Snapshot returns copies of every registered connection.
func (h *Hub) Snapshot() []ConnectionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ConnectionInfo, 0, len(h.connections))
	for _, conn := range h.connections {
		out = append(out, conn.infoLocked())
	}
	return out
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{Connections: len(h.connections)}
	for _, conn := range h.connections {
		s.Subscriptions += len(conn.subscriptions)
	}
	return s
}

// target pairs a connection with a copy of its patterns taken under the
// registry lock, so a broadcast pass never reads a set mid-mutation.
type target struct {
	conn     *Connection
	patterns []string
}

func (h *Hub) targets() []target {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]target, 0, len(h.connections))
	for _, conn := range h.connections {
		patterns := make([]string, 0, len(conn.subscriptions))
		for p := range conn.subscriptions {
			patterns = append(patterns, p)
		}
		out = append(out, target{conn: conn, patterns: patterns})
	}
	return out
}

func (h *Hub) drain() []*Connection {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*Connection, 0, len(h.connections))
	for id, conn := range h.connections {
		out = append(out, conn)
		delete(h.connections, id)
	}
	return out
}

func (h *Hub) release(conn *Connection) {
	conn.markClosed()
	if closer, ok := conn.sink.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			h.logger.Warnf("Failed to close sink for connection %s: %v", conn.id, err)
		}
	}
}
