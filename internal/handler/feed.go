package handler

import (
	"log/slog"
	"net/http"

	gws "github.com/gorilla/websocket"

	"github.com/pagepilot/pagepilot/internal/websocket"
)

var upgrader = gws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The app is served and consumed on the same local origin.
		return true
	},
}

// FeedHandler upgrades pages onto the session change feed.
type FeedHandler struct {
	hub    *websocket.Hub
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler for the given hub.
func NewFeedHandler(hub *websocket.Hub, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleFeed upgrades the connection and attaches it to the hub.
//
// HTTP: GET /ws/session
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("session feed upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := websocket.NewClient(h.hub, conn)
	go client.WritePump()
	go client.ReadPump()
}
