// Package websocket fans session changes out to connected pages.
//
// The original app could rely on every component sharing one in-memory
// provider; once pages are served over HTTP, a second tab only notices a
// session change on reload. The hub closes that gap: each open page holds
// a websocket to /ws/session, and every session mutation broadcasts the
// new auth state so other tabs can refresh their chrome. This is an
// opt-in notification layer — persisted behavior stays last-write-wins.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/pagepilot/pagepilot/internal/model"
)

// sessionEvent is the wire format pushed to clients.
type sessionEvent struct {
	Type            string      `json:"type"`
	User            *model.User `json:"user"`
	IsAuthenticated bool        `json:"isAuthenticated"`
}

// Hub tracks connected clients and broadcasts session events to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	stop       chan struct{}
	done       chan struct{} // closed when Run exits
	logger     *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewHub creates a Hub. Call Run in its own goroutine before serving.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run owns the client set. All joins, leaves, and broadcasts flow through
// this loop, so no other goroutine touches h.clients.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]bool)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("session feed client connected",
				slog.String("clientID", client.id.String()),
				slog.Int("clients", len(h.clients)),
			)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client is not draining its queue; drop it rather
					// than stall the broadcast.
					delete(h.clients, client)
					client.Close()
				}
			}
		}
	}
}

// Stop shuts the hub down and waits for Run to exit. Safe to call once.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

// SessionChanged implements session.Notifier. It never blocks the
// use-case path: if the hub is saturated the event is dropped, and the
// page catches up on its next full load.
func (h *Hub) SessionChanged(state model.AuthState) {
	data, err := json.Marshal(sessionEvent{
		Type:            "session",
		User:            state.User,
		IsAuthenticated: state.IsAuthenticated(),
	})
	if err != nil {
		h.logger.Error("encoding session event", slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("session feed backlogged, dropping event")
	}
}
