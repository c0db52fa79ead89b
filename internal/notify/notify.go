// Package notify streams point-value updates to websocket subscribers:
// the framework's live notifier surface.
package notify

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rvpf/internal/point"
	"rvpf/internal/value"
)

const writeTimeout = 5 * time.Second

// Update is the JSON shape sent to subscribers.
type Update struct {
	Point string `json:"point"`
	UUID  string `json:"uuid"`
	Stamp string `json:"stamp"`
	State string `json:"state,omitempty"`
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// Hub fans point-value updates out to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	closed  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]bool{},
	}
}

// ServeHTTP upgrades the request and keeps the client subscribed until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	client, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[notify] upgrade: %v", err)
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		client.Close()
		return
	}
	h.clients[client] = true
	h.mu.Unlock()

	// Drain (and ignore) client messages to notice the disconnect.
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				h.drop(client)
				return
			}
		}
	}()
}

func (h *Hub) drop(client *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.Close()
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends the observation to every subscriber, dropping clients
// whose writes fail.
func (h *Hub) Publish(pv *point.Value) {
	update := Update{
		Stamp: pv.Stamp.Format(time.RFC3339Nano),
	}
	if pv.Point != nil {
		update.Point = pv.Point.Name
		update.UUID = pv.Point.UUID.String()
	}
	if pv.State != nil {
		update.State = pv.State.Name
	}
	if pv.Value != nil {
		update.Kind = pv.Value.Kind().String()
		update.Value = pv.Value.String()
	} else {
		update.Kind = value.KindNull.String()
	}

	h.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := client.WriteJSON(update); err != nil {
			h.drop(client)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*websocket.Conn, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = map[*websocket.Conn]bool{}
	h.mu.Unlock()
	for _, client := range clients {
		client.Close()
	}
}
