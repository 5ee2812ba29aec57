package storage

import (
	"encoding"
	"encoding/binary"
	"time"

	"chatrelay/internal/models"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBLastMessage struct {
	Text         string `msgpack:"text"`
	SenderID     string `msgpack:"senderId"`
	SenderName   string `msgpack:"senderName"`
	SenderAvatar string `msgpack:"senderAvatar"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

type DBConversation struct {
	ID            string         `msgpack:"id"`
	Members       []string       `msgpack:"members"`
	IsGroup       bool           `msgpack:"isGroup"`
	Name          string         `msgpack:"name"`
	Avatar        string         `msgpack:"avatar"`
	UnreadCounts  map[string]int `msgpack:"unreadCounts"`
	LastMessage   *DBLastMessage `msgpack:"lastMessage"`
	LastMessageAt int64          `msgpack:"lastMessageAt"`
	CreatedAt     int64          `msgpack:"createdAt"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

func newDBConversation(c models.Conversation) *DBConversation {
	dbc := &DBConversation{
		ID:            c.ID,
		Members:       c.Members,
		IsGroup:       c.IsGroup,
		Name:          c.Name,
		Avatar:        c.Avatar,
		UnreadCounts:  c.UnreadCounts,
		LastMessageAt: toUnix(c.LastMessageAt),
		CreatedAt:     toUnix(c.CreatedAt),
	}
	if c.LastMessage != nil {
		dbc.LastMessage = &DBLastMessage{
			Text:         c.LastMessage.Text,
			SenderID:     c.LastMessage.SenderID,
			SenderName:   c.LastMessage.SenderName,
			SenderAvatar: c.LastMessage.SenderAvatar,
			CreatedAt:    toUnix(c.LastMessage.CreatedAt),
		}
	}
	return dbc
}

func (c *DBConversation) model() models.Conversation {
	conv := models.Conversation{
		ID:            c.ID,
		Members:       c.Members,
		IsGroup:       c.IsGroup,
		Name:          c.Name,
		Avatar:        c.Avatar,
		UnreadCounts:  c.UnreadCounts,
		LastMessageAt: fromUnix(c.LastMessageAt),
		CreatedAt:     fromUnix(c.CreatedAt),
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int)
	}
	if c.LastMessage != nil {
		conv.LastMessage = &models.LastMessage{
			Text:         c.LastMessage.Text,
			SenderID:     c.LastMessage.SenderID,
			SenderName:   c.LastMessage.SenderName,
			SenderAvatar: c.LastMessage.SenderAvatar,
			CreatedAt:    fromUnix(c.LastMessage.CreatedAt),
		}
	}
	return conv
}

type DBMessage struct {
	Seq            uint64   `msgpack:"seq"`
	ID             string   `msgpack:"id"`
	ConversationID string   `msgpack:"conversationId"`
	SenderID       string   `msgpack:"senderId"`
	SenderName     string   `msgpack:"senderName"`
	SenderAvatar   string   `msgpack:"senderAvatar"`
	Text           string   `msgpack:"text"`
	Status         string   `msgpack:"status"`
	ReadBy         []string `msgpack:"readBy"`
	CreatedAt      int64    `msgpack:"createdAt"`
	UpdatedAt      int64    `msgpack:"updatedAt"`
}

func (m *DBMessage) Key() []byte {
	return seqKey(m.Seq)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

func (m *DBMessage) model() models.Message {
	readBy := make([]string, len(m.ReadBy))
	copy(readBy, m.ReadBy)
	return models.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		SenderAvatar:   m.SenderAvatar,
		Text:           m.Text,
		Status:         models.MessageStatus(m.Status),
		ReadBy:         readBy,
		CreatedAt:      fromUnix(m.CreatedAt),
		UpdatedAt:      fromUnix(m.UpdatedAt),
	}
}

type DBProfile struct {
	ID          string `msgpack:"id"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
	Email       string `msgpack:"email"`
	LastSeenAt  int64  `msgpack:"lastSeenAt"`
}

func (p *DBProfile) Key() []byte {
	return []byte(p.ID)
}

func (p *DBProfile) MarshalBinary() (data []byte, err error) {
	type alias DBProfile
	return msgpack.Marshal((*alias)(p))
}

func (p *DBProfile) UnmarshalBinary(data []byte) error {
	type alias DBProfile
	return msgpack.Unmarshal(data, (*alias)(p))
}

func (p *DBProfile) model() models.UserProfile {
	return models.UserProfile{
		ID:          p.ID,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
		Email:       p.Email,
		LastSeenAt:  fromUnix(p.LastSeenAt),
	}
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Timestamps are stored as Unix nanoseconds; zero means unset.
func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
