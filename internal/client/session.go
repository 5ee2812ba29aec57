package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"chatrelay/internal/models"
)

const (
	bannerHistory      = "Could not load the conversation history. Please retry."
	bannerSend         = "Could not send the message. Please retry."
	bannerConversation = "Could not load the conversation details."
)

var ErrNoConversation = errors.New("no conversation open")

type sessionAPI interface {
	ListConversations(ctx context.Context) ([]models.ConversationView, error)
	GetConversation(ctx context.Context, conversationID string) (models.ConversationView, error)
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (models.Message, error)
}

type sessionSocket interface {
	Join(conversationID string) error
	Leave(conversationID string) error
	Relay(message models.Message) error
}

// Session merges REST responses and realtime events into one consistent view of
// the open conversation and the conversation list.
type Session struct {
	userID string
	api    sessionAPI
	socket sessionSocket

	mu     sync.Mutex
	thread *Thread
	inbox  *Inbox
}

func NewSession(userID string, api sessionAPI, socket sessionSocket) *Session {
	return &Session{
		userID: userID,
		api:    api,
		socket: socket,
		thread: NewThread(),
		inbox:  NewInbox(),
	}
}

// Refresh reloads the conversation list.
func (s *Session) Refresh(ctx context.Context) error {
	list, err := s.api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	s.mu.Lock()
	s.inbox.Replace(list)
	s.mu.Unlock()
	return nil
}

// Open switches to conversationID, joins its room and loads its history.
func (s *Session) Open(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	previous := s.thread.ConversationID()
	s.thread.Switch(conversationID)
	s.mu.Unlock()

	if s.socket != nil {
		if previous != "" && previous != conversationID {
			if err := s.socket.Leave(previous); err != nil {
				slog.Warn("failed to leave room", "conversation_id", previous, "error", err)
			}
		}
		if err := s.socket.Join(conversationID); err != nil {
			slog.Warn("failed to join room", "conversation_id", conversationID, "error", err)
		}
	}

	return s.fetch(ctx, conversationID)
}

// fetch runs the read path for conversationID. A response for a conversation that
// is no longer open is dropped.
func (s *Session) fetch(ctx context.Context, conversationID string) error {
	history, err := s.api.ListMessages(ctx, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread.ConversationID() != conversationID {
		return nil
	}
	if err != nil {
		s.thread.Error = bannerHistory
		return fmt.Errorf("failed to load messages: %w", err)
	}
	s.thread.Load(history)
	s.thread.Error = ""
	s.inbox.Seen(conversationID)
	return nil
}

// Send posts text to the open conversation and relays the stored message.
func (s *Session) Send(ctx context.Context, text string) (models.Message, error) {
	s.mu.Lock()
	conversationID := s.thread.ConversationID()
	s.mu.Unlock()

	if conversationID == "" {
		return models.Message{}, ErrNoConversation
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, fmt.Errorf("text is required: %w", models.ErrInvalidArgument)
	}

	message, err := s.api.SendMessage(ctx, conversationID, strings.TrimSpace(text))
	if err != nil {
		s.setError(conversationID, bannerSend)
		return models.Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	s.mu.Lock()
	if s.thread.ConversationID() == conversationID {
		s.thread.Append(message)
		s.thread.Draft = ""
		s.thread.Error = ""
	}
	known := s.inbox.MessageSent(conversationID, message.Preview())
	s.mu.Unlock()

	if !known {
		s.refreshConversation(ctx, conversationID)
	}

	if s.socket != nil {
		if err := s.socket.Relay(message); err != nil {
			slog.Warn("failed to relay message", "conversation_id", conversationID, "error", err)
		}
	}

	return message, nil
}

// HandleEvent applies one realtime event.
func (s *Session) HandleEvent(ctx context.Context, event models.ServerEvent) {
	switch event.Type {
	case models.ServerEventNewMessage:
		if event.Message == nil {
			return
		}
		message := *event.Message
		if message.ConversationID == "" {
			message.ConversationID = event.ConversationID
		}

		s.mu.Lock()
		open := s.thread.ConversationID() == message.ConversationID
		if open {
			s.thread.Append(message)
		}
		countUnread := !open && message.SenderID != s.userID
		known := s.inbox.MessageReceived(message.ConversationID, message.Preview(), countUnread)
		s.mu.Unlock()

		if !known {
			s.refreshConversation(ctx, message.ConversationID)
		}

	case models.ServerEventConversationUpdate:
		s.mu.Lock()
		open := s.thread.ConversationID() == event.ConversationID
		s.mu.Unlock()

		if open {
			if err := s.fetch(ctx, event.ConversationID); err != nil {
				slog.Warn("failed to refresh open conversation", "conversation_id", event.ConversationID, "error", err)
			}
			return
		}
		s.refreshConversation(ctx, event.ConversationID)

	case models.ServerEventError:
		s.setError(event.ConversationID, event.Error)
	}
}

// Run applies events until the channel closes or ctx is done.
func (s *Session) Run(ctx context.Context, events <-chan models.ServerEvent) error {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.HandleEvent(ctx, event)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) refreshConversation(ctx context.Context, conversationID string) {
	view, err := s.api.GetConversation(ctx, conversationID)
	if err != nil {
		slog.Warn("failed to load conversation", "conversation_id", conversationID, "error", err)
		s.setError(conversationID, bannerConversation)
		return
	}
	s.mu.Lock()
	s.inbox.Upsert(view)
	s.mu.Unlock()
}

// setError shows a banner when conversationID is open.
func (s *Session) setError(conversationID, banner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == "" || s.thread.ConversationID() == conversationID {
		s.thread.Error = banner
	}
}

func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread.Draft = text
}

func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.ConversationID()
}

func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Messages()
}

func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Draft
}

// Banner returns the transient error shown for the open conversation.
func (s *Session) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thread.Error
}

func (s *Session) Conversations() []models.ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inbox.List()
}
