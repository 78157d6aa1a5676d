package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slimani-dev/muraqib/internal/models"
)

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub count never reached %d (now %d)", want, h.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversPublishedEvents(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dialHub(t, h)
	waitForCount(t, h, 1)

	h.PublishTunnelStatus(&models.Tunnel{Name: "edge", Status: "healthy"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "tunnel_status", ev.Type)
	require.NotNil(t, ev.Tunnel)
	assert.Equal(t, "edge", ev.Tunnel.Name)
	assert.Equal(t, "healthy", ev.Tunnel.Status)
}

func TestHub_RemovesDisconnectedClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	conn := dialHub(t, h)
	waitForCount(t, h, 1)

	conn.Close()
	waitForCount(t, h, 0)

	// Publishing into an empty hub must not block or panic.
	h.PublishTunnelStatus(&models.Tunnel{Name: "edge", Status: "down"})
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	h := NewHub(zap.NewNop())

	// A client with no write loop draining it stands in for a consumer
	// that stopped reading.
	stuck := &client{send: make(chan Event, 1)}
	h.mu.Lock()
	h.clients[stuck] = struct{}{}
	h.mu.Unlock()

	h.PublishTunnelStatus(&models.Tunnel{Name: "edge", Status: "healthy"})
	assert.Equal(t, 1, h.Count(), "first event fits the buffer")

	h.PublishTunnelStatus(&models.Tunnel{Name: "edge", Status: "degraded"})
	assert.Equal(t, 0, h.Count(), "overflowing the buffer drops the client")

	_, open := <-stuck.send
	assert.True(t, open, "buffered event survives the drop")
	_, open = <-stuck.send
	assert.False(t, open, "send channel is closed after the drop")
}
