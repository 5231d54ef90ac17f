package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"go-realtime-gateway/internal/infrastructure/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	h := New(&mockLogger{}, opts)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
	})
	return h
}

func register(t *testing.T, h *Hub, id string, sink Sink, topics ...string) {
	t.Helper()
	conn := NewConnection(ConnectRequest{ID: id, Transport: "mock", Topics: topics, Sink: sink})
	if err := h.Register(conn); err != nil {
		t.Fatalf("Failed to register %s: %v", id, err)
	}
}

func TestHub_StartStop(t *testing.T) {
	hub := New(&mockLogger{}, DefaultOptions())
	ctx := context.Background()

	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	if !hub.IsRunning() {
		t.Error("Hub should be running after start")
	}
	if err := hub.Start(ctx); err == nil {
		t.Error("Second start should fail")
	}

	if err := hub.Stop(ctx); err != nil {
		t.Fatalf("Failed to stop hub: %v", err)
	}
	if hub.IsRunning() {
		t.Error("Hub should not be running after stop")
	}
	if err := hub.Stop(ctx); err != nil {
		t.Errorf("Stop on a stopped hub should be a no-op, got %v", err)
	}
}

func TestHub_RegisterRequiresRunning(t *testing.T) {
	hub := New(&mockLogger{}, DefaultOptions())
	conn := NewConnection(ConnectRequest{Sink: &mockSink{}})

	if err := hub.Register(conn); !errors.Is(err, ErrHubNotRunning) {
		t.Fatalf("Expected ErrHubNotRunning, got %v", err)
	}
}

func TestHub_ConnectionManagement(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())

	if hub.ConnectionCount() != 0 {
		t.Errorf("Expected 0 connections, got %d", hub.ConnectionCount())
	}

	register(t, hub, "test-conn-1", &mockSink{}, "price:*", " ", "odds:nfl:1")

	info, exists := hub.Get("test-conn-1")
	if !exists {
		t.Fatal("Connection should exist")
	}
	if info.ID != "test-conn-1" {
		t.Errorf("Expected connection ID 'test-conn-1', got '%s'", info.ID)
	}
	if len(info.Topics) != 2 {
		t.Errorf("Expected blank topics to be dropped, got %v", info.Topics)
	}

	dup := NewConnection(ConnectRequest{ID: "test-conn-1", Sink: &mockSink{}})
	if err := hub.Register(dup); !errors.Is(err, ErrConnectionExists) {
		t.Errorf("Expected ErrConnectionExists, got %v", err)
	}

	if !hub.Remove("test-conn-1") {
		t.Error("First remove should report removal")
	}
	if hub.Remove("test-conn-1") {
		t.Error("Second remove should be a no-op")
	}
	if _, exists := hub.Get("test-conn-1"); exists {
		t.Error("Connection should be gone")
	}
}

func TestHub_RemoveReleasesConnection(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	sink := NewQueueSink(1)
	conn := NewConnection(ConnectRequest{Sink: sink})
	if err := hub.Register(conn); err != nil {
		t.Fatal(err)
	}

	hub.Remove(conn.ID())

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after removal")
	}
	select {
	case <-sink.Closed():
	default:
		t.Error("Sink should be closed after removal")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	register(t, hub, "c1", &mockSink{})

	n, ok := hub.Subscribe("c1", "price:*")
	if !ok || n != 1 {
		t.Fatalf("Subscribe = (%d, %v), want (1, true)", n, ok)
	}
	n, _ = hub.Subscribe("c1", "price:*", "odds:*")
	if n != 2 {
		t.Errorf("Duplicate pattern should be stored once, got %d subscriptions", n)
	}

	n, ok = hub.Unsubscribe("c1", "price:*", "never-subscribed")
	if !ok || n != 1 {
		t.Errorf("Unsubscribe = (%d, %v), want (1, true)", n, ok)
	}

	if _, ok := hub.Subscribe("missing", "x"); ok {
		t.Error("Subscribe on a missing connection should report not found")
	}
	if _, ok := hub.Unsubscribe("missing", "x"); ok {
		t.Error("Unsubscribe on a missing connection should report not found")
	}
}

func TestHub_Stats(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	register(t, hub, "c1", &mockSink{}, "a", "b")
	register(t, hub, "c2", &mockSink{}, "a")
	register(t, hub, "c3", &mockSink{})

	got := hub.Stats()
	want := Stats{Connections: 3, Subscriptions: 3}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
	if len(hub.Snapshot()) != 3 {
		t.Errorf("Snapshot should list 3 connections")
	}
}

func TestHub_StopReleasesAll(t *testing.T) {
	hub := New(&mockLogger{}, DefaultOptions())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := NewConnection(ConnectRequest{Sink: &mockSink{}})
	if err := hub.Register(conn); err != nil {
		t.Fatal(err)
	}

	if err := hub.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("Stop should release registered connections")
	}
	if hub.ConnectionCount() != 0 {
		t.Errorf("Expected empty registry after stop, got %d", hub.ConnectionCount())
	}
}

// Mock implementations for testing

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}

// mockSink records frames, or fails every write when fail is set.
type mockSink struct {
	mu     sync.Mutex
	fail   bool
	frames []Frame
	calls  int
}

var errBrokenPipe = errors.New("broken pipe")

func (m *mockSink) Send(ctx context.Context, frame *Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return errBrokenPipe
	}
	m.frames = append(m.frames, *frame)
	return nil
}

func (m *mockSink) received() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.frames...)
}

func (m *mockSink) attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
