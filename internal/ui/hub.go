package ui

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// maxSlowCount is how many consecutive dropped sends a client survives
// before it is disconnected.
const maxSlowCount = 3

// wsClient is one connected frontend.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	slowCount int
}

// Hub fans events out to all connected frontends. A slow client gets its
// messages dropped and is eventually evicted; it never stalls the others.
type Hub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
	logger     *slog.Logger
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		logger:     slog.With("component", "ui-hub"),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			var toRemove []*wsClient
			for client := range h.clients {
				select {
				case client.send <- message:
					client.slowCount = 0
				default:
					client.slowCount++
					if client.slowCount >= maxSlowCount {
						h.logger.Warn("client too slow, disconnecting", "missed", client.slowCount)
						toRemove = append(toRemove, client)
					}
				}
			}
			for _, client := range toRemove {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a JSON message for every connected client. If the hub
// itself is saturated the message is dropped with a log line.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("broadcast marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected frontends.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// handleWS upgrades the request and serves the client until it disconnects.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // local desktop app
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- client
	h.logger.Info("frontend connected", "total", h.ClientCount())

	done := make(chan struct{})
	go h.pingLoop(client, done)
	go h.writePump(client)
	h.readPump(client)
	close(done)
}

func (h *Hub) writePump(client *wsClient) {
	defer client.conn.Close(websocket.StatusNormalClosure, "")

	for message := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump discards inbound data; frontends talk to the daemon over HTTP.
// Reading is still required to notice the peer going away.
func (h *Hub) readPump(client *wsClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close(websocket.StatusNormalClosure, "")
		h.logger.Info("frontend disconnected", "remaining", h.ClientCount())
	}()

	for {
		if _, _, err := client.conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func (h *Hub) pingLoop(client *wsClient, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := client.conn.Ping(ctx)
			cancel()
			if err != nil {
				client.conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}
