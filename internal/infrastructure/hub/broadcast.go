package hub

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Broadcast frames payload under event and delivers it once to every
// connection with at least one pattern matching topic. Failed recipients are
// dropped from the registry; the return value counts successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, topic, event string, payload any) int {
	var recipients []*Connection
	for _, t := range h.targets() {
		if matchAny(t.patterns, topic) {
			recipients = append(recipients, t.conn)
		}
	}

	n := h.fanOut(ctx, recipients, EventFrame(event, topic, payload), nil)
	h.logger.Debugf("Broadcast %s on %s delivered to %d connections", event, topic, n)
	return n
}

// fanOut delivers frame to every connection on a bounded worker group and
// returns the number of successful writes. onDelivered, if set, runs after
// each success.
func (h *Hub) fanOut(ctx context.Context, conns []*Connection, frame Frame, onDelivered func(*Connection)) int {
	var (
		delivered atomic.Int64
		g         errgroup.Group
	)
	g.SetLimit(h.opts.FanoutWorkers)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			if h.deliver(ctx, conn, frame) {
				delivered.Add(1)
				if onDelivered != nil {
					onDelivered(conn)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(delivered.Load())
}

// Send delivers a single frame to one connection, for control replies.
func (h *Hub) Send(ctx context.Context, id string, frame Frame) error {
	h.mu.RLock()
	conn, exists := h.connections[id]
	h.mu.RUnlock()
	if !exists {
		return ErrConnectionNotFound
	}
	if !h.deliver(ctx, conn, frame) {
		return ErrSinkClosed
	}
	return nil
}

// deliver writes frame to conn under the per-connection write deadline and
// removes the connection if the sink rejects it. It is shared by broadcast,
// heartbeat and the greeting frame.
func (h *Hub) deliver(ctx context.Context, conn *Connection, frame Frame) bool {
	wctx, cancel := context.WithTimeout(ctx, h.opts.WriteTimeout)
	defer cancel()

	err := conn.send(wctx, &h.seq, frame)
	if err == nil {
		return true
	}

	// The caller gave up; that says nothing about the client.
	if ctx.Err() != nil && !errors.Is(err, ErrSinkClosed) {
		return false
	}

	h.logger.Debugf("Dropping connection %s after %s write failure: %v", conn.id, frame.Event, err)
	h.Remove(conn.id)
	return false
}
