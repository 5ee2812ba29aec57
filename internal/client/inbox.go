package client

import (
	"sort"

	"chatrelay/internal/models"
)

// Inbox is the conversation list, most recently active first.
type Inbox struct {
	items []models.ConversationView
}

func NewInbox() *Inbox {
	return &Inbox{}
}

func (i *Inbox) Replace(list []models.ConversationView) {
	i.items = append([]models.ConversationView(nil), list...)
	i.sort()
}

// Upsert replaces the entry with the same id or adds a new one.
func (i *Inbox) Upsert(view models.ConversationView) {
	if idx := i.index(view.ID); idx >= 0 {
		i.items[idx] = view
	} else {
		i.items = append(i.items, view)
	}
	i.sort()
}

func (i *Inbox) Get(conversationID string) (models.ConversationView, bool) {
	if idx := i.index(conversationID); idx >= 0 {
		return i.items[idx], true
	}
	return models.ConversationView{}, false
}

// MessageSent updates the preview after the caller sent a message. It reports
// false when the conversation is not in the list.
func (i *Inbox) MessageSent(conversationID string, preview models.LastMessage) bool {
	idx := i.index(conversationID)
	if idx < 0 {
		return false
	}
	i.applyPreview(idx, preview)
	i.items[idx].UnreadCount = 0
	i.sort()
	return true
}

// MessageReceived updates the preview for an incoming message and bumps the badge
// when countUnread is set. It reports false when the conversation is unknown.
func (i *Inbox) MessageReceived(conversationID string, preview models.LastMessage, countUnread bool) bool {
	idx := i.index(conversationID)
	if idx < 0 {
		return false
	}
	i.applyPreview(idx, preview)
	if countUnread {
		i.items[idx].UnreadCount++
	}
	i.sort()
	return true
}

// Seen clears the badge of a conversation.
func (i *Inbox) Seen(conversationID string) {
	if idx := i.index(conversationID); idx >= 0 {
		i.items[idx].UnreadCount = 0
	}
}

func (i *Inbox) List() []models.ConversationView {
	out := make([]models.ConversationView, len(i.items))
	copy(out, i.items)
	return out
}

func (i *Inbox) applyPreview(idx int, preview models.LastMessage) {
	p := preview
	i.items[idx].LastMessage = &p
	if preview.CreatedAt.After(i.items[idx].LastMessageAt) {
		i.items[idx].LastMessageAt = preview.CreatedAt
	}
}

func (i *Inbox) index(conversationID string) int {
	for idx, item := range i.items {
		if item.ID == conversationID {
			return idx
		}
	}
	return -1
}

func (i *Inbox) sort() {
	sort.SliceStable(i.items, func(a, b int) bool {
		return i.items[a].SortKey().After(i.items[b].SortKey())
	})
}
