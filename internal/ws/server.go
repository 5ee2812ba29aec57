package ws

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"

	"chatrelay/internal/identity"

	"github.com/gorilla/websocket"
)

type Server struct {
	hub        *Hub
	upgrader   *websocket.Upgrader
	bufferSize int
}

// NewServer accepts upgrades from allowedOrigins. An empty list allows any origin.
// Requests without an Origin header come from non-browser clients and are allowed.
func NewServer(hub *Hub, allowedOrigins []string, bufferSize int) *Server {
	return &Server{
		hub:        hub,
		bufferSize: bufferSize,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := identity.FromRequest(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("error upgrading to websocket", "user_id", userID, "error", err)
		return
	}

	conn := NewConnection(s.hub, ws, userID, s.bufferSize)
	slog.Info("websocket connected", "user_id", userID)

	if err := conn.Handle(r.Context()); err != nil && !isNormalClose(err) {
		slog.Warn("websocket closed with error", "user_id", userID, "error", err)
		return
	}
	slog.Info("websocket disconnected", "user_id", userID)
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed)
}
