// Package websocket fans out conversion lifecycle events to connected
// live-diagnostics clients over a websocket hub, the same
// register/unregister/broadcast-channel shape the teacher's DAG streamer
// uses for its visualization clients.
package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ocx/slimlo/internal/events"
)

// Streamer pushes events.CloudEvents to every connected websocket client.
type Streamer struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan *events.CloudEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
}

// NewStreamer returns a Streamer; call Run in its own goroutine to start
// the hub loop.
func NewStreamer() *Streamer {
	return &Streamer{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan *events.CloudEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run processes register/unregister/broadcast until stop is closed.
func (s *Streamer) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			s.mu.Unlock()
		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.Close()
			}
			s.mu.Unlock()
		case event := <-s.broadcast:
			s.mu.RLock()
			for client := range s.clients {
				if err := client.WriteJSON(event); err != nil {
					slog.Debug("websocket: write failed, dropping client", "error", err)
					client.Close()
					delete(s.clients, client)
				}
			}
			s.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades r and registers the resulting connection.
func (s *Streamer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket: upgrade failed", "error", err)
		return
	}
	s.register <- conn

	go func() {
		defer func() { s.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes event to every connected client, non-blocking: a full
// broadcast channel means the event is dropped rather than stalling Emit.
func (s *Streamer) Broadcast(event *events.CloudEvent) {
	select {
	case s.broadcast <- event:
	default:
		slog.Warn("websocket: broadcast channel full, dropping event", "type", event.Type, "time", time.Now())
	}
}

// Stats returns basic hub telemetry.
func (s *Streamer) Stats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"connected_clients": len(s.clients),
		"broadcast_queue":   len(s.broadcast),
	}
}
