// Package dashboard pushes change-feed events to ui-admin viewers over
// a websocket instead of making them poll /changes themselves.
package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fleetforge/coordinator/internal/types"
)

// WebSocketBufferSize is the per-client send channel's buffer, letting
// a burst of events queue up before a slow client's connection blocks.
const WebSocketBufferSize = 256

// Client is one connected dashboard viewer. ProjectID of 0 means an
// unscoped viewer that sees every project's events.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	projectID int64
}

// Hub fans a change event out to every connected viewer whose
// projectID scope matches (or is unscoped).
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *types.ChangeEvent
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *types.ChangeEvent, WebSocketBufferSize),
	}
}

// Run is the hub's single-goroutine event loop; all client map
// mutation happens here, under mu so that ClientCount can read the
// map from other goroutines.
func (h *Hub) Run() {
	for {
		select {
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

		case event := <-h.broadcast:
			data, err := json.Marshal(types.WSMessage{Type: types.WSTypeChangeEvent, Data: event})
			if err != nil {
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if client.projectID != 0 && client.projectID != event.ProjectID {
					continue
				}
				select {
				case client.send <- data:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// Broadcast queues one change event for fan-out. Never blocks the
// caller: a full buffer means the hub is backed up, not that this
// publish should stall the component that produced the event.
func (h *Hub) Broadcast(event *types.ChangeEvent) {
	select {
	case h.broadcast <- event:
	default:
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
