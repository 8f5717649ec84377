package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ResultEvent is one scored text pushed to stream subscribers. Snippet is a
// truncated view of the input; full texts never leave the request path.
type ResultEvent struct {
	Snippet    string    `json:"snippet"`
	Sentiment  string    `json:"sentiment"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	ElapsedMS  float64   `json:"elapsed_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Client is one connected stream subscriber.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// StreamHub broadcasts scored results to websocket subscribers. Subscribers
// only listen; inbound messages are drained and discarded.
type StreamHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewStreamHub creates a hub; call Start in a goroutine and Stop on
// shutdown.
func NewStreamHub() *StreamHub {
	ctx, cancel := context.WithCancel(context.Background())

	return &StreamHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start runs the hub loop until Stop is called.
func (h *StreamHub) Start() {
	defer zap.S().Infof("Result stream hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infof("Stream client connected: %s (total: %d)", client.clientID, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			zap.S().Infof("Stream client disconnected: %s (total: %d)", client.clientID, total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts down the hub and disconnects all clients.
func (h *StreamHub) Stop() {
	h.cancel()
}

// ClientCount reports the number of connected subscribers.
func (h *StreamHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishResult broadcasts one scored result. A full queue drops the event
// rather than blocking the request path.
func (h *StreamHub) PublishResult(event ResultEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		zap.S().Warnf("Failed to marshal stream event: %v", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		zap.S().Warnf("Stream broadcast queue is full, dropping event")
	}
}

// HandleWebSocket upgrades the request and attaches the client to the hub.
func (h *StreamHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: fmt.Sprintf("client_%d", time.Now().UnixNano()),
	}

	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.S().Warnf("WebSocket write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames so pings and closes are processed; the
// stream has no client commands.
func (c *Client) readPump(h *StreamHub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				zap.S().Warnf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// Snippet shortens text for stream events and log lines.
func Snippet(text string, limit int) string {
	if limit <= 0 {
		limit = 50
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
