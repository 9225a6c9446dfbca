// Package realtime は接続中のUIクライアントへWebSocketで状態変更を配信する。
//
// Hubはドキュメントの変更（ローカル・リモート由来の両方）と同期状態の遷移を
// 全クライアントへブロードキャストする。クライアントからのメッセージは処理しない。
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType はメッセージの種別。
type MessageType string

const (
	MessageTypeDocument   MessageType = "document"
	MessageTypeSyncStatus MessageType = "sync_status"
)

const (
	broadcastBuffer = 64
	writeTimeout    = 5 * time.Second
)

// Message はクライアントへ送るメッセージ。
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Origin    string      `json:"origin,omitempty"`
	Data      any         `json:"data"`
}

// HubConfig はHubの設定。
type HubConfig struct {
	// OriginPatterns はWebSocket接続を許可するOriginのホストパターン。
	// 空の場合は同一オリジンのみ許可される。
	OriginPatterns []string
	// Snapshot は接続直後に送る初期メッセージを返す。nilの場合は何も送らない。
	Snapshot func() []Message
	// OnClientsChanged はクライアント数が変化したときに呼ばれる。nilでもよい。
	OnClientsChanged func(count int)
	Logger           *slog.Logger
}

// Hub はWebSocketクライアントを管理し、メッセージをブロードキャストする。
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	originPatterns   []string
	snapshot         func() []Message
	onClientsChanged func(int)
	logger           *slog.Logger
}

// NewHub はHubを生成する。配信を始めるにはStartを呼ぶ。
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:          make(map[*websocket.Conn]bool),
		broadcast:        make(chan Message, broadcastBuffer),
		ctx:              ctx,
		cancel:           cancel,
		originPatterns:   cfg.OriginPatterns,
		snapshot:         cfg.Snapshot,
		onClientsChanged: cfg.OnClientsChanged,
		logger:           cfg.Logger,
	}
}

// Start はブロードキャストループを開始する。
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.broadcastLoop()
}

// Stop は全クライアントを切断し、ブロードキャストループを停止する。
func (h *Hub) Stop() {
	h.cancel()

	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	h.notifyClients(0)

	h.wg.Wait()
}

// ClientCount は接続中のクライアント数を返す。
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Broadcast はメッセージを全クライアントへ送る。
// バッファが一杯の場合はメッセージを破棄する（次の変更で最新状態が届く）。
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("ブロードキャストのバッファが一杯のためメッセージを破棄しました",
			slog.String("type", string(msg.Type)),
		)
	}
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("メッセージのエンコードに失敗しました",
					slog.String("type", string(msg.Type)),
					slog.String("error", err.Error()),
				)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := h.write(conn, data); err != nil {
					h.logger.Warn("クライアントへの送信に失敗しました",
						slog.String("error", err.Error()),
					)
					h.removeClient(conn)
				}
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(h.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP はHTTP接続をWebSocketにアップグレードし、クライアントとして登録する。
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("WebSocketのアップグレードに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	// 初期状態は登録前に送り、ブロードキャストと順序が入れ替わらないようにする
	if h.snapshot != nil {
		for _, msg := range h.snapshot() {
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := h.write(conn, data); err != nil {
				_ = conn.Close(websocket.StatusInternalError, "initial write failed")
				return
			}
		}
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.notifyClients(count)

	h.logger.Info("WebSocketクライアントが接続しました",
		slog.Int("clients", count),
		slog.String("remote_addr", r.RemoteAddr),
	)

	h.readLoop(conn)
}

// readLoop は接続を維持し、切断を検知する。受信したメッセージは破棄する。
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)

	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, exists := h.clients[conn]; !exists {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.notifyClients(count)
	h.logger.Info("WebSocketクライアントが切断しました",
		slog.Int("clients", count),
	)
}

func (h *Hub) notifyClients(count int) {
	if h.onClientsChanged != nil {
		h.onClientsChanged(count)
	}
}
