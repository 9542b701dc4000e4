// Package ws implements the socket fan-out server: it accepts websocket
// upgrades on the existing HTTP listener and broadcasts messages to every
// currently open connection.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ingest-pipeline/pkg/observability"
)

const (
	writeWait = 10 * time.Second
	// sendBuffer is how many pending broadcasts a slow connection may lag
	// behind before it is evicted.
	sendBuffer = 32
)

type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[*connection]struct{}
}

type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*connection]struct{}),
	}
}

// HandleWS upgrades the request and runs the connection's read and write
// pumps.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &connection{ws: sock, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.register(c)
	h.log.Info("client connected", "remote", sock.RemoteAddr().String())

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast serializes once and writes to every open connection. Connections
// in a closing state are skipped, and a failing connection is evicted without
// aborting delivery to the others.
func (h *Hub) Broadcast(v any) {
	message, err := json.Marshal(v)
	if err != nil {
		h.log.Error("broadcast marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case <-c.done:
			// Already closing; skip, never queue on it.
		case c.send <- message:
		default:
			// Hopelessly behind; evict rather than block the loop.
			h.log.Warn("dropping slow websocket connection")
			h.unregister(c)
		}
	}
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close tears down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.unregister(c)
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	observability.WSConnections.Inc()
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	_, open := h.conns[c]
	if open {
		delete(h.conns, c)
	}
	h.mu.Unlock()

	if open {
		observability.WSConnections.Dec()
		close(c.done)
		_ = c.ws.Close()
	}
}

func (h *Hub) writePump(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				h.log.Warn("websocket write failed", "error", err)
				h.unregister(c)
				return
			}
		}
	}
}

// readPump rebroadcasts inbound client frames as low-value telemetry and
// detects the connection closing.
func (h *Hub) readPump(c *connection) {
	defer h.unregister(c)
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("websocket read failed", "error", err)
			} else {
				h.log.Info("client disconnected")
			}
			return
		}
		h.Broadcast(map[string]any{
			"event":     "client:message",
			"payload":   string(message),
			"timestamp": time.Now().UnixMilli(),
		})
	}
}
