package hub

import (
	"context"
	"time"
)

// run is the liveness monitor loop.
func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.heartbeat(ctx)

		case <-ctx.Done():
			h.logger.Info("Liveness monitor stopped")
			return
		}
	}
}

// heartbeat probes every connection with a ping frame. Connections whose
// sink rejects the write are removed by deliver.
func (h *Hub) heartbeat(ctx context.Context) {
	targets := h.targets()
	if len(targets) == 0 {
		return
	}

	conns := make([]*Connection, len(targets))
	for i, t := range targets {
		conns[i] = t.conn
	}

	alive := h.fanOut(ctx, conns, PingFrame(), func(c *Connection) {
		c.lastHeartbeatAt.Store(time.Now().UnixNano())
	})

	if dropped := len(conns) - alive; dropped > 0 {
		h.logger.Infof("Heartbeat: %d alive, %d dropped", alive, dropped)
	}
}
