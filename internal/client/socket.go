package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"chatrelay/internal/identity"
	"chatrelay/internal/models"

	"github.com/gorilla/websocket"
)

const socketPath = "/api/ws"

// Socket is the realtime connection of one user. Server events are delivered on
// Events until the connection ends.
type Socket struct {
	conn    *websocket.Conn
	events  chan models.ServerEvent
	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the realtime endpoint of the server at baseURL (http or https).
func Dial(ctx context.Context, baseURL, userID string) (*Socket, error) {
	wsURL := strings.TrimRight(baseURL, "/") + socketPath
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	header.Set(identity.HeaderUserID, userID)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %s: %w", wsURL, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}

	s := &Socket{
		conn:   conn,
		events: make(chan models.ServerEvent, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (s *Socket) readLoop() {
	defer close(s.events)
	for {
		var event models.ServerEvent
		if err := s.conn.ReadJSON(&event); err != nil {
			select {
			case <-s.done:
			default:
				slog.Debug("socket read ended", "error", err)
			}
			return
		}
		select {
		case s.events <- event:
		case <-s.done:
			return
		}
	}
}

func (s *Socket) Events() <-chan models.ServerEvent {
	return s.events
}

func (s *Socket) Join(conversationID string) error {
	return s.write(models.ClientEvent{Type: models.ClientEventJoin, ConversationID: conversationID})
}

func (s *Socket) Leave(conversationID string) error {
	return s.write(models.ClientEvent{Type: models.ClientEventLeave, ConversationID: conversationID})
}

// Relay echoes a message the caller just sent to the rest of the room.
func (s *Socket) Relay(message models.Message) error {
	return s.write(models.ClientEvent{
		Type:           models.ClientEventNewMessage,
		ConversationID: message.ConversationID,
		Message:        &message,
	})
}

func (s *Socket) write(event models.ClientEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(event)
}

func (s *Socket) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
