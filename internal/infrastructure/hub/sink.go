package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrSinkClosed = errors.New("sink is closed")

// Sink is the write end of a client transport. A non-nil error from Send is
// the authoritative signal that the connection is dead.
type Sink interface {
	Send(ctx context.Context, frame *Frame) error
}

// QueueSink buffers frames for a transport pump (SSE stream loop, WebSocket
// write pump) that owns the underlying writer. Send never touches the
// network, so a slow client costs at most one bounded wait per delivery.
type QueueSink struct {
	frames chan *Frame
	closed chan struct{}
	once   sync.Once
}

func NewQueueSink(size int) *QueueSink {
	if size <= 0 {
		size = 1
	}
	return &QueueSink{
		frames: make(chan *Frame, size),
		closed: make(chan struct{}),
	}
}

// Send enqueues frame, waiting until ctx expires if the queue is full.
func (s *QueueSink) Send(ctx context.Context, frame *Frame) error {
	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}

	select {
	case s.frames <- frame:
		return nil
	case <-s.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return fmt.Errorf("enqueue frame: %w", ctx.Err())
	}
}

// Frames is drained by the transport pump.
func (s *QueueSink) Frames() <-chan *Frame {
	return s.frames
}

// Closed is closed once the sink stops accepting frames.
func (s *QueueSink) Closed() <-chan struct{} {
	return s.closed
}

// Close is idempotent. Frames still queued are abandoned.
func (s *QueueSink) Close() error {
	s.once.Do(func() {
		close(s.closed)
	})
	return nil
}
