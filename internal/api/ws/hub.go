// Package ws pushes live status events to connected dashboards over
// websockets.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 16
)

// Event is one message pushed to dashboards.
type Event struct {
	Type   string         `json:"type"`
	Tunnel *models.Tunnel `json:"tunnel,omitempty"`
}

// Hub fans events out to every connected dashboard. A client that cannot
// keep up is dropped rather than allowed to block the others.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	log      *zap.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-host self-hosted; cross-origin reads
			// are not a concern here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// PublishTunnelStatus broadcasts a tunnel status change.
func (h *Hub) PublishTunnelStatus(t *models.Tunnel) {
	h.broadcast(Event{Type: "tunnel_status", Tunnel: t})
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// Slow consumer: drop it.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Serve upgrades the request and keeps the connection subscribed until the
// peer goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan Event, sendBufferSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// writeLoop drains outbound events and keeps the connection alive with
// pings.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; the stream is one-way, but reading is
// required to process pongs and close frames.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Count reports connected dashboards, for the health endpoint.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
