package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"SortyxServer/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans classification events out to connected kiosk displays. Broadcast
// never blocks the request path; a client that cannot keep up is dropped.
// mu guards only the registry, so Attach and Count stay responsive while a
// broadcast is writing; wmu serializes writers on the shared connections.
type Hub struct {
	mu      sync.Mutex
	wmu     sync.Mutex
	clients map[string]*websocket.Conn
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*websocket.Conn)}
}

// Attach upgrades the request and keeps the connection until the peer closes
// it. Incoming frames are read and discarded, the hub is push-only.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log().Sugar().Warnf("websocket upgrade failed: %v", err)
		return
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = conn
	h.mu.Unlock()
	logger.Log().Sugar().Infof("websocket client %s connected", id)

	go func() {
		defer h.drop(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client. Fire and forget.
func (h *Hub) Broadcast(event interface{}) {
	h.mu.Lock()
	clients := make(map[string]*websocket.Conn, len(h.clients))
	for id, conn := range h.clients {
		clients[id] = conn
	}
	h.mu.Unlock()

	go func() {
		h.wmu.Lock()
		defer h.wmu.Unlock()
		for id, conn := range clients {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				logger.Log().Sugar().Warnf("websocket client %s dropped: %v", id, err)
				h.drop(id)
			}
		}
	}()
}

// Count reports the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) drop(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.clients[id]; ok {
		conn.Close()
		delete(h.clients, id)
	}
}
