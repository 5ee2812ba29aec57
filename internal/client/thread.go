package client

import "chatrelay/internal/models"

// Thread is the ordered message history of the open conversation. Messages are
// unique by id no matter how many paths deliver them.
type Thread struct {
	conversationID string
	messages       []models.Message
	seen           map[string]struct{}

	Draft string
	Error string
}

func NewThread() *Thread {
	return &Thread{seen: make(map[string]struct{})}
}

func (t *Thread) ConversationID() string {
	return t.conversationID
}

// Switch opens another conversation and discards messages, draft and error state.
func (t *Thread) Switch(conversationID string) {
	t.conversationID = conversationID
	t.messages = nil
	t.seen = make(map[string]struct{})
	t.Draft = ""
	t.Error = ""
}

// Load merges fetched history into the thread. Fetched records replace any copy
// already held so read state reflects the server.
func (t *Thread) Load(history []models.Message) {
	fetched := make(map[string]struct{}, len(history))
	merged := make([]models.Message, 0, len(history)+len(t.messages))
	for _, m := range history {
		if _, dup := fetched[m.ID]; dup {
			continue
		}
		fetched[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	// Keep live messages that arrived after the fetch snapshot.
	for _, m := range t.messages {
		if _, ok := fetched[m.ID]; !ok {
			merged = append(merged, m)
			fetched[m.ID] = struct{}{}
		}
	}
	t.messages = merged
	t.seen = fetched
}

// Append adds m unless a message with the same id is already present.
func (t *Thread) Append(m models.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := t.seen[m.ID]; ok {
		return false
	}
	t.seen[m.ID] = struct{}{}
	t.messages = append(t.messages, m)
	return true
}

func (t *Thread) Len() int {
	return len(t.messages)
}

func (t *Thread) Messages() []models.Message {
	out := make([]models.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
