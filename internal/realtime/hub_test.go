package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hitoshi/teerotation/internal/model"
)

func newTestHub(t *testing.T, cfg HubConfig) (*Hub, *httptest.Server) {
	t.Helper()
	cfg.Logger = slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	hub := NewHub(cfg)
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestHub_SendsSnapshotOnConnect(t *testing.T) {
	doc := model.Document{Teas: []model.Tea{{ID: "a", Name: "Assam"}}, Queue: []string{"a"}}
	_, srv := newTestHub(t, HubConfig{
		Snapshot: func() []Message {
			return []Message{
				DocumentMessage(doc, "local"),
				SyncStatusMessage(map[string]string{"status": "idle"}),
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, srv)

	first := readMessage(t, ctx, conn)
	if first["type"] != string(MessageTypeDocument) {
		t.Errorf("first message type = %v, want document", first["type"])
	}
	data := first["data"].(map[string]any)
	if teas := data["teas"].([]any); len(teas) != 1 {
		t.Errorf("teas = %v", teas)
	}

	second := readMessage(t, ctx, conn)
	if second["type"] != string(MessageTypeSyncStatus) {
		t.Errorf("second message type = %v, want sync_status", second["type"])
	}
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	var clients atomic.Int64
	hub, srv := newTestHub(t, HubConfig{
		OnClientsChanged: func(n int) { clients.Store(int64(n)) },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dial(t, ctx, srv)
	}
	waitForClients(t, hub, numClients)
	if clients.Load() != numClients {
		t.Errorf("OnClientsChanged last value = %d, want %d", clients.Load(), numClients)
	}

	hub.Broadcast(DocumentMessage(model.EmptyDocument(), "remote"))

	for i, conn := range conns {
		msg := readMessage(t, ctx, conn)
		if msg["type"] != string(MessageTypeDocument) || msg["origin"] != "remote" {
			t.Errorf("client %d got %v", i, msg)
		}
	}
}

func TestHub_RemovesDisconnectedClients(t *testing.T) {
	hub, srv := newTestHub(t, HubConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, srv)
	waitForClients(t, hub, 1)

	conn.Close(websocket.StatusNormalClosure, "bye")
	waitForClients(t, hub, 0)
}

func TestHub_BroadcastAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(HubConfig{Logger: slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))})
	hub.Start()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer*2; i++ {
			hub.Broadcast(SyncStatusMessage("idle"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked after Stop")
	}
}
