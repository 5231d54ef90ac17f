package hub

import (
	"context"
	"fmt"
)

// Pump moves frames from a connection's sink onto its transport. It must
// return once ctx is done.
type Pump func(ctx context.Context) error

// Serve runs one client connection: it registers conn, greets it with a
// connected frame, then runs pump until the connection leaves the registry,
// ctx ends, or the pump fails. The connection is always removed on return.
// A nil pump just waits.
func (h *Hub) Serve(ctx context.Context, conn *Connection, pump Pump) error {
	if err := h.Register(conn); err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	defer h.Remove(conn.id)

	info, _ := h.Get(conn.id)
	h.deliver(ctx, conn, ConnectedFrame(conn.id, info.Topics, conn.principal != ""))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-conn.done:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if pump == nil {
		<-runCtx.Done()
		return nil
	}
	if err := pump(runCtx); err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}
