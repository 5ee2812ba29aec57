package models

import (
	"errors"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
)

type MessageStatus string

const (
	MessageStatusSent MessageStatus = "sent"
	MessageStatusSeen MessageStatus = "seen"
)

// UserProfile is the directory entry for a user. The chat core only reads it.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl"`
	Email       string    `json:"email,omitempty"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// LastMessage is the denormalized preview kept on a conversation.
type LastMessage struct {
	Text         string    `json:"text"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	SenderAvatar string    `json:"senderAvatar"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Conversation is the stored conversation record.
type Conversation struct {
	ID            string         `json:"id"`
	Members       []string       `json:"members"` // insertion order
	IsGroup       bool           `json:"isGroup"`
	Name          string         `json:"name,omitempty"`
	Avatar        string         `json:"avatar,omitempty"`
	UnreadCounts  map[string]int `json:"unreadCounts"`
	LastMessage   *LastMessage   `json:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"lastMessageAt"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// HasMember reports whether userID participates in the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// SortKey is the timestamp used to order conversation lists.
func (c Conversation) SortKey() time.Time {
	if c.LastMessageAt.IsZero() {
		return c.CreatedAt
	}
	return c.LastMessageAt
}

// Message is a single chat message.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	SenderAvatar   string        `json:"senderAvatar"`
	Text           string        `json:"text"`
	Status         MessageStatus `json:"status"`
	ReadBy         []string      `json:"readBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// ReadByMember reports whether userID has viewed the message.
func (m Message) ReadByMember(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Preview builds the conversation preview for this message.
func (m Message) Preview() LastMessage {
	return LastMessage{
		Text:         m.Text,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		SenderAvatar: m.SenderAvatar,
		CreatedAt:    m.CreatedAt,
	}
}

// ConversationView is a conversation as seen by one member.
type ConversationView struct {
	ID            string        `json:"id"`
	Members       []UserProfile `json:"members"`
	IsGroup       bool          `json:"isGroup"`
	Name          string        `json:"name,omitempty"`
	Avatar        string        `json:"avatar,omitempty"`
	UnreadCount   int           `json:"unreadCount"`
	LastMessage   *LastMessage  `json:"lastMessage,omitempty"`
	LastMessageAt time.Time     `json:"lastMessageAt"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// SortKey is the timestamp used to order conversation lists.
func (v ConversationView) SortKey() time.Time {
	if v.LastMessageAt.IsZero() {
		return v.CreatedAt
	}
	return v.LastMessageAt
}

// ClientEvent is a realtime frame sent by a client.
type ClientEvent struct {
	Type           ClientEventType `json:"type"`
	ConversationID string          `json:"conversationId"`
	Message        *Message        `json:"message,omitempty"`
}

// ServerEvent is a realtime frame pushed to a client.
type ServerEvent struct {
	Type           ServerEventType `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	Message        *Message        `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type ClientEventType string

const (
	ClientEventJoin       ClientEventType = "conversation:join"
	ClientEventLeave      ClientEventType = "conversation:leave"
	ClientEventNewMessage ClientEventType = "message:new"
)

type ServerEventType string

const (
	ServerEventNewMessage         ServerEventType = "message:new"
	ServerEventConversationUpdate ServerEventType = "conversation:update"
	ServerEventError              ServerEventType = "error"
)

// APIResponse is the error body of the REST API.
type APIResponse struct {
	Message string `json:"message"`
}
