package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
)

type event struct {
	id   string
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) event {
	t.Helper()
	var ev event
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if ev.name != "" || ev.data != "" {
				return ev
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "id:"):
			ev.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func setup(t *testing.T, start bool) (*hub.Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New(logger.NewNop(), hub.DefaultOptions())
	if start {
		if err := h.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	router := gin.New()
	authenticator := auth.NewStaticAuthenticator(map[string]string{"secret": "user-1"})
	InitSSERouter(logger.NewNop(), h, authenticator, Options{SendBuffer: 16, WriteTimeout: time.Second}, router.Group(""))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return h, srv
}

func TestConnect_StreamsMatchingEvents(t *testing.T) {
	h, srv := setup(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?topics=price:kalshi:*&token=secret", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}
	r := bufio.NewReader(resp.Body)

	greeting := readEvent(t, r)
	if greeting.name != hub.EventConnected {
		t.Fatalf("First event = %q, want connected", greeting.name)
	}
	var data hub.ConnectedData
	if err := json.Unmarshal([]byte(greeting.data), &data); err != nil {
		t.Fatalf("decode greeting: %v", err)
	}
	if data.ConnectionID == "" || !data.Authenticated {
		t.Errorf("Unexpected greeting %+v", data)
	}
	if len(data.Topics) != 1 || data.Topics[0] != "price:kalshi:*" {
		t.Errorf("Greeting topics = %v", data.Topics)
	}

	if n := h.Broadcast(ctx, "price:odds-api:ABC", hub.EventMessage, json.RawMessage(`{}`)); n != 0 {
		t.Errorf("Non-matching broadcast delivered to %d", n)
	}
	if n := h.Broadcast(ctx, "price:kalshi:ABC", hub.EventMessage, json.RawMessage(`{"p":0.62}`)); n != 1 {
		t.Fatalf("Matching broadcast delivered to %d", n)
	}

	msg := readEvent(t, r)
	if msg.name != hub.EventMessage {
		t.Fatalf("Event = %q, want message", msg.name)
	}
	var env struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal([]byte(msg.data), &env); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if env.Topic != "price:kalshi:ABC" || string(env.Data) != `{"p":0.62}` {
		t.Errorf("Unexpected envelope %+v", env)
	}

	greetID, _ := strconv.ParseUint(greeting.id, 10, 64)
	msgID, _ := strconv.ParseUint(msg.id, 10, 64)
	if greetID == 0 || msgID <= greetID {
		t.Errorf("Event ids should increase: %q then %q", greeting.id, msg.id)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectionCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if h.ConnectionCount() != 0 {
		t.Error("Client disconnect should deregister the connection")
	}
}

func TestConnect_AnonymousWithBadToken(t *testing.T) {
	_, srv := setup(t, true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	greeting := readEvent(t, bufio.NewReader(resp.Body))
	var data hub.ConnectedData
	if err := json.Unmarshal([]byte(greeting.data), &data); err != nil {
		t.Fatal(err)
	}
	if data.Authenticated {
		t.Error("Invalid credential should connect anonymously")
	}
	if len(data.Topics) != 0 {
		t.Errorf("Expected no topics, got %v", data.Topics)
	}
}

func TestConnect_HubNotRunning(t *testing.T) {
	_, srv := setup(t, false)

	resp, err := http.Get(srv.URL + "/sse?topics=a")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", resp.StatusCode)
	}
}
