package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/pkg/models"
)

func dialWatch(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/search/records:watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("invalid frame %q: %v", data, err)
	}
	return msg
}

func TestWatchRecords(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHTTPServer(completedRunner(t, 1), nil, hub, nil).Handler())
	defer srv.Close()

	conn := dialWatch(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 1 })

	cfg := models.DefaultConfiguration()
	hub.Observe(anneal.Record{Iteration: 7, Move: "lr_up", Trial: cfg, TrialScore: models.Score{Correct: 9100}})
	hub.PublishStatus(runner.Status{RunID: "search-test", Status: models.RunStatusCompleted})

	first := readMessage(t, conn)
	if first.Type != "record" || first.Record == nil || first.Record.Iteration != 7 || first.Record.Move != "lr_up" {
		t.Errorf("unexpected record frame %+v", first)
	}
	second := readMessage(t, conn)
	if second.Type != "status" || second.Status == nil || second.Status.Status != models.RunStatusCompleted {
		t.Errorf("unexpected status frame %+v", second)
	}
}

func TestHubCloseDisconnectsWatchers(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHTTPServer(completedRunner(t, 1), nil, hub, nil).Handler())
	defer srv.Close()

	conn := dialWatch(t, srv)
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.Close()
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline failed: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}
	if hub.Clients() != 0 {
		t.Errorf("expected no clients after close, got %d", hub.Clients())
	}
}

func TestHubDropsForSlowWatchers(t *testing.T) {
	hub := NewHub()
	sub, ok := hub.subscribe()
	if !ok {
		t.Fatal("subscribe failed")
	}
	for i := 0; i < subscriberSize+3; i++ {
		hub.Broadcast([]byte("{}"))
	}
	if len(sub.send) != subscriberSize {
		t.Errorf("expected a full buffer of %d, got %d", subscriberSize, len(sub.send))
	}
	if hub.Dropped() != 3 {
		t.Errorf("expected 3 dropped frames, got %d", hub.Dropped())
	}

	hub.unsubscribe(sub)
	hub.unsubscribe(sub)
	if hub.Clients() != 0 {
		t.Errorf("expected no clients, got %d", hub.Clients())
	}

	hub.Close()
	if _, ok := hub.subscribe(); ok {
		t.Error("expected subscribe to fail after Close")
	}
}
