package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBroadcast_PrefixSubscription(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	c1 := &mockSink{}
	register(t, hub, "c1", c1, "price:kalshi:*")

	payload := map[string]float64{"p": 0.62}
	if n := hub.Broadcast(context.Background(), "price:kalshi:ABC", EventMessage, payload); n != 1 {
		t.Fatalf("Expected 1 delivery, got %d", n)
	}

	frames := c1.received()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	env, ok := frames[0].Data.(Envelope)
	if !ok {
		t.Fatalf("Expected Envelope data, got %T", frames[0].Data)
	}
	if env.Topic != "price:kalshi:ABC" {
		t.Errorf("Envelope topic = %q", env.Topic)
	}
	if got, ok := env.Data.(map[string]float64); !ok || got["p"] != 0.62 {
		t.Errorf("Envelope payload = %v", env.Data)
	}
	if frames[0].Event != EventMessage || frames[0].ID == 0 {
		t.Errorf("Unexpected frame header %+v", frames[0])
	}

	if n := hub.Broadcast(context.Background(), "price:odds-api:ABC", EventMessage, "x"); n != 0 {
		t.Errorf("Expected 0 deliveries, got %d", n)
	}
	if len(c1.received()) != 1 {
		t.Error("Non-matching topic must not be delivered")
	}
}

func TestBroadcast_NoDuplicateDelivery(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	c1 := &mockSink{}
	c2 := &mockSink{}
	register(t, hub, "c1", c1, "odds:nfl:*", "scores:nfl:*", "odds:*", "odds:nfl:game42")
	register(t, hub, "c2", c2, "odds:nfl:*")

	if n := hub.Broadcast(context.Background(), "odds:nfl:game42", EventMessage, "{}"); n != 2 {
		t.Fatalf("Expected 2 deliveries, got %d", n)
	}
	if got := len(c1.received()); got != 1 {
		t.Errorf("c1 received %d frames, want 1", got)
	}
	if got := len(c2.received()); got != 1 {
		t.Errorf("c2 received %d frames, want 1", got)
	}
}

func TestBroadcast_IsolatesFailingConnection(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	a := &mockSink{fail: true}
	b := &mockSink{}
	register(t, hub, "a", a, "trade:*")
	register(t, hub, "b", b, "trade:*")

	if n := hub.Broadcast(context.Background(), "trade:kalshi:ABC", EventMessage, 1); n != 1 {
		t.Fatalf("Expected 1 delivery, got %d", n)
	}
	if len(b.received()) != 1 {
		t.Error("Healthy connection should still receive the frame")
	}
	for _, info := range hub.Snapshot() {
		if info.ID == "a" {
			t.Fatal("Failing connection should be removed from the registry")
		}
	}

	hub.Broadcast(context.Background(), "trade:kalshi:ABC", EventMessage, 2)
	if a.attempts() != 1 {
		t.Errorf("Removed connection should not be retried, got %d attempts", a.attempts())
	}
}

func TestBroadcast_SequenceMonotonic(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	sinks := make([]*mockSink, 5)
	for i := range sinks {
		sinks[i] = &mockSink{}
		register(t, hub, fmt.Sprintf("c%d", i), sinks[i], "t:*")
	}

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hub.Broadcast(context.Background(), "t:x", EventMessage, i)
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for i, s := range sinks {
		frames := s.received()
		if len(frames) != 200 {
			t.Fatalf("sink %d received %d frames, want 200", i, len(frames))
		}
		for j := 1; j < len(frames); j++ {
			if frames[j].ID <= frames[j-1].ID {
				t.Fatalf("sink %d: id %d after %d", i, frames[j].ID, frames[j-1].ID)
			}
		}
		for _, f := range frames {
			if seen[f.ID] {
				t.Fatalf("id %d delivered twice", f.ID)
			}
			seen[f.ID] = true
		}
	}
}

func TestBroadcast_SlowClientBoundedByWriteTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.WriteTimeout = 50 * time.Millisecond
	hub := newTestHub(t, opts)

	slow := NewQueueSink(1)
	fast := &mockSink{}
	if err := hub.Register(NewConnection(ConnectRequest{ID: "slow", Sink: slow, Topics: []string{"*"}})); err != nil {
		t.Fatal(err)
	}
	register(t, hub, "fast", fast, "*")

	hub.Broadcast(context.Background(), "a", EventMessage, 1)

	start := time.Now()
	n := hub.Broadcast(context.Background(), "a", EventMessage, 2)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Broadcast blocked for %s on a full queue", elapsed)
	}
	if n != 1 {
		t.Errorf("Expected only the fast client to receive, got %d", n)
	}
	if _, ok := hub.Get("slow"); ok {
		t.Error("Client with a full queue past the deadline should be removed")
	}
	if len(fast.received()) != 2 {
		t.Errorf("fast client received %d frames, want 2", len(fast.received()))
	}
}

func TestBroadcast_CancelledCallerKeepsConnection(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	full := NewQueueSink(1)
	if err := hub.Register(NewConnection(ConnectRequest{ID: "c", Sink: full, Topics: []string{"*"}})); err != nil {
		t.Fatal(err)
	}
	hub.Broadcast(context.Background(), "a", EventMessage, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Broadcast(ctx, "a", EventMessage, 2)

	if _, ok := hub.Get("c"); !ok {
		t.Error("A cancelled publisher must not evict subscribers")
	}
}

func TestHub_SendToMissingConnection(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	if err := hub.Send(context.Background(), "nope", PingFrame()); err != ErrConnectionNotFound {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}
}
