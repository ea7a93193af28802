package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"audiobook-forge/backend/internal/jobs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans job events out to connected websocket clients. Dead connections
// are dropped on write failure.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan jobs.Event
	mu        sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan jobs.Event, 64),
	}
}

func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mu.Lock()
		for client := range h.clients {
			if err := client.WriteJSON(msg); err != nil {
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mu.Unlock()
	}
}

func (h *Hub) Broadcast(ev jobs.Event) {
	select {
	case h.broadcast <- ev:
	default:
		// Slow hub must not stall the conversion pipeline.
	}
}

func (s *Server) WsHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade WS: %v", err)
		return
	}

	s.hub.mu.Lock()
	s.hub.clients[conn] = true
	s.hub.mu.Unlock()

	conn.WriteJSON(jobs.Event{Type: jobs.EventTypeStatus, Message: "Connected to audiobook backend"})
}
