package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chatrelay/internal/content"
	"chatrelay/internal/models"
)

type Store interface {
	AppendMessage(message models.Message) (models.Message, error)
	RecordSend(conversationID, senderID string, last models.LastMessage) (models.Conversation, error)
	MarkRead(conversationID, readerID string) ([]models.Message, error)
	ResetUnread(conversationID, memberID string) (models.Conversation, error)
	ListConversations(userID string) ([]models.Conversation, error)
	EnsureDirectConversation(a, b string) (models.Conversation, error)
}

type Guard interface {
	Authorize(conversationID, callerID string) (models.Conversation, error)
}

type Directory interface {
	Get(userID string) (models.UserProfile, error)
	Resolve(userID string) models.UserProfile
}

// Notifier pushes realtime events to connected members. Delivery is best effort.
type Notifier interface {
	BroadcastNewMessage(conversationID string, message models.Message)
	NotifyConversationUpdate(memberID, conversationID string)
}

type Config struct {
	Store     Store
	Guard     Guard
	Directory Directory
	Notifier  Notifier
}

// Service owns the message write path and read-state transitions.
type Service struct {
	store     Store
	guard     Guard
	directory Directory
	notifier  Notifier
}

func New(config Config) *Service {
	return &Service{
		store:     config.Store,
		guard:     config.Guard,
		directory: config.Directory,
		notifier:  config.Notifier,
	}
}

// SendMessage stores a new message and fans it out:
// - appending it to the conversation log with the sender as its only reader
// - resetting the sender's unread counter and incrementing everyone else's
// - broadcasting it to the conversation room and nudging other members' own rooms
//
// The append and the counter update are separate writes. A crash between them
// leaves the message stored with counters not yet incremented.
func (s *Service) SendMessage(conversationID, callerID, text string) (models.Message, error) {
	text = content.NormalizeText(text)
	if strings.TrimSpace(conversationID) == "" || text == "" {
		return models.Message{}, fmt.Errorf("conversationId and text are required: %w", models.ErrInvalidArgument)
	}

	conv, err := s.guard.Authorize(conversationID, callerID)
	if err != nil {
		return models.Message{}, err
	}

	sender := s.directory.Resolve(callerID)

	message, err := s.store.AppendMessage(models.Message{
		ConversationID: conv.ID,
		SenderID:       callerID,
		SenderName:     sender.DisplayName,
		SenderAvatar:   sender.AvatarURL,
		Text:           text,
		Status:         models.MessageStatusSent,
		ReadBy:         []string{callerID},
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store message: %w", err)
	}

	conv, err = s.store.RecordSend(message.ConversationID, callerID, message.Preview())
	if err != nil {
		slog.Error("message stored but conversation update failed",
			"conversation_id", message.ConversationID, "message_id", message.ID, "error", err)
		return models.Message{}, fmt.Errorf("failed to update conversation: %w", err)
	}

	if s.notifier != nil {
		s.notifier.BroadcastNewMessage(conv.ID, message)
		for _, member := range conv.Members {
			if member != callerID {
				s.notifier.NotifyConversationUpdate(member, conv.ID)
			}
		}
	}

	return message, nil
}

// ListMessages returns the conversation history and marks it read for callerID.
// The response is built from the records as they are after the read update.
func (s *Service) ListMessages(conversationID, callerID string) ([]models.Message, error) {
	conv, err := s.guard.Authorize(conversationID, callerID)
	if err != nil {
		return nil, err
	}

	messages, err := s.store.MarkRead(conv.ID, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages read: %w", err)
	}

	views := make([]models.Message, len(messages))
	for i, m := range messages {
		views[i] = viewFor(callerID, m)
	}

	if _, err := s.store.ResetUnread(conv.ID, callerID); err != nil {
		return nil, fmt.Errorf("failed to reset unread counter: %w", err)
	}

	return views, nil
}

// viewFor projects the status of a message for one viewer. Senders see the stored
// status; anyone else who has read the message sees it as seen.
func viewFor(viewerID string, m models.Message) models.Message {
	if m.SenderID == viewerID {
		return m
	}
	if m.ReadByMember(viewerID) {
		m.Status = models.MessageStatusSeen
	}
	return m
}

// ListConversations returns the caller's conversations, most recently active first.
func (s *Service) ListConversations(callerID string) ([]models.ConversationView, error) {
	conversations, err := s.store.ListConversations(callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	views := make([]models.ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, s.view(conv, callerID))
	}
	return views, nil
}

// GetConversation returns a single conversation the caller belongs to.
func (s *Service) GetConversation(conversationID, callerID string) (models.ConversationView, error) {
	conv, err := s.guard.Authorize(conversationID, callerID)
	if err != nil {
		return models.ConversationView{}, err
	}
	return s.view(conv, callerID), nil
}

// EnsureConversation returns the direct conversation between the caller and
// targetUserID, creating it on first contact.
func (s *Service) EnsureConversation(callerID, targetUserID string) (models.ConversationView, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return models.ConversationView{}, fmt.Errorf("targetUserId is required: %w", models.ErrInvalidArgument)
	}
	if targetUserID == callerID {
		return models.ConversationView{}, fmt.Errorf("cannot start a conversation with yourself: %w", models.ErrInvalidArgument)
	}
	if _, err := s.directory.Get(targetUserID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ConversationView{}, fmt.Errorf("user %s: %w", targetUserID, models.ErrNotFound)
		}
		return models.ConversationView{}, err
	}

	conv, err := s.store.EnsureDirectConversation(callerID, targetUserID)
	if err != nil {
		return models.ConversationView{}, fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return s.view(conv, callerID), nil
}

func (s *Service) view(conv models.Conversation, callerID string) models.ConversationView {
	members := make([]models.UserProfile, 0, len(conv.Members))
	for _, id := range conv.Members {
		profile, err := s.directory.Get(id)
		if err != nil {
			profile = models.UserProfile{ID: id}
		}
		members = append(members, profile)
	}
	return models.ConversationView{
		ID:            conv.ID,
		Members:       members,
		IsGroup:       conv.IsGroup,
		Name:          conv.Name,
		Avatar:        conv.Avatar,
		UnreadCount:   conv.UnreadCounts[callerID],
		LastMessage:   conv.LastMessage,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}
}
