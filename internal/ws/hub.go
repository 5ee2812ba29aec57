package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chatrelay/internal/models"

	"github.com/c-pro/geche"
)

const ownRoomPrefix = "user:"

type roomGuard interface {
	Authorize(conversationID, callerID string) (models.Conversation, error)
}

type messageLookup interface {
	GetMessage(conversationID, messageID string) (models.Message, error)
}

type connSet map[*Connection]struct{}

// Hub tracks live connections and the rooms they joined. Each connection is in
// its user's own room from registration until it disconnects; conversation rooms
// are joined explicitly and only after the membership check passes.
type Hub struct {
	guard    roomGuard
	messages messageLookup

	// Map of userID -> live connections of that user
	presence map[string]connSet

	// Map of roomID -> connections joined to it
	rooms map[string]connSet

	// Map of connection -> rooms it joined, for teardown
	memberships map[*Connection]map[string]struct{}

	// IDs of messages already fanned out by the server
	delivered geche.Geche[string, struct{}]

	mu sync.RWMutex
}

func NewHub(ctx context.Context, guard roomGuard, messages messageLookup, dedupTTL time.Duration) *Hub {
	if dedupTTL <= 0 {
		dedupTTL = time.Minute
	}
	return &Hub{
		guard:       guard,
		messages:    messages,
		presence:    make(map[string]connSet),
		rooms:       make(map[string]connSet),
		memberships: make(map[*Connection]map[string]struct{}),
		delivered:   geche.NewMapTTLCache[string, struct{}](ctx, dedupTTL, time.Minute),
	}
}

func ownRoom(userID string) string {
	return ownRoomPrefix + userID
}

func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.presence[c.userID] == nil {
		h.presence[c.userID] = make(connSet)
	}
	h.presence[c.userID][c] = struct{}{}
	h.memberships[c] = make(map[string]struct{})
	h.joinLocked(c, ownRoom(c.userID))
}

func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.memberships[c] {
		h.leaveLocked(c, room)
	}
	delete(h.memberships, c)

	if conns, ok := h.presence[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.presence, c.userID)
		}
	}
}

func (h *Hub) Dispatch(c *Connection, event models.ClientEvent) {
	switch event.Type {
	case models.ClientEventJoin:
		h.join(c, event.ConversationID)
	case models.ClientEventLeave:
		h.leave(c, event.ConversationID)
	case models.ClientEventNewMessage:
		h.relay(c, event)
	default:
		slog.Debug("unknown client event", "user_id", c.userID, "type", event.Type)
	}
}

func (h *Hub) join(c *Connection, conversationID string) {
	if conversationID == "" {
		return
	}
	if _, err := h.guard.Authorize(conversationID, c.userID); err != nil {
		slog.Warn("room join rejected", "user_id", c.userID, "conversation_id", conversationID, "error", err)
		c.deliver(models.ServerEvent{
			Type:           models.ServerEventError,
			ConversationID: conversationID,
			Error:          err.Error(),
		})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.memberships[c]; !ok {
		return // Unregistered while the check ran
	}
	h.joinLocked(c, conversationID)
}

func (h *Hub) leave(c *Connection, conversationID string) {
	if conversationID == "" || conversationID == ownRoom(c.userID) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, conversationID)
}

func (h *Hub) joinLocked(c *Connection, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(connSet)
	}
	h.rooms[room][c] = struct{}{}
	h.memberships[c][room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Connection, room string) {
	if conns, ok := h.rooms[room]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.memberships[c]; ok {
		delete(rooms, room)
	}
}

// relay forwards a client-originated message:new to the rest of the room. Only the
// sender may relay, and only a message that is stored; the stored copy is what goes
// out. Messages the server already broadcast are dropped so members never get the
// same id twice.
func (h *Hub) relay(c *Connection, event models.ClientEvent) {
	if event.ConversationID == "" || event.Message == nil || event.Message.ID == "" {
		return
	}
	if event.Message.SenderID != c.userID {
		slog.Warn("relay from non-sender dropped", "user_id", c.userID, "message_id", event.Message.ID)
		return
	}
	if event.Message.ConversationID != "" && event.Message.ConversationID != event.ConversationID {
		return
	}
	if !h.InRoom(c, event.ConversationID) {
		return
	}
	if _, err := h.delivered.Get(event.Message.ID); err == nil {
		return
	}

	message, err := h.messages.GetMessage(event.ConversationID, event.Message.ID)
	if err != nil || message.SenderID != c.userID {
		slog.Warn("relay of unknown message dropped",
			"user_id", c.userID, "conversation_id", event.ConversationID, "message_id", event.Message.ID, "error", err)
		return
	}
	h.delivered.Set(message.ID, struct{}{})

	h.emit(event.ConversationID, models.ServerEvent{
		Type:           models.ServerEventNewMessage,
		ConversationID: event.ConversationID,
		Message:        &message,
	}, c)
}

// BroadcastNewMessage pushes a stored message to every connection in the conversation room.
func (h *Hub) BroadcastNewMessage(conversationID string, message models.Message) {
	h.delivered.Set(message.ID, struct{}{})
	h.emit(conversationID, models.ServerEvent{
		Type:           models.ServerEventNewMessage,
		ConversationID: conversationID,
		Message:        &message,
	}, nil)
}

// NotifyConversationUpdate pushes a conversation:update to all of a member's connections.
func (h *Hub) NotifyConversationUpdate(memberID, conversationID string) {
	h.emit(ownRoom(memberID), models.ServerEvent{
		Type:           models.ServerEventConversationUpdate,
		ConversationID: conversationID,
	}, nil)
}

func (h *Hub) emit(room string, event models.ServerEvent, except *Connection) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		if !c.deliver(event) {
			slog.Warn("dropping event for slow connection", "user_id", c.userID, "room", room, "type", event.Type)
		}
	}
}

// InRoom reports whether c joined the conversation room.
func (h *Hub) InRoom(c *Connection, conversationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][c]
	return ok
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

// Presence returns the number of live connections per online user.
func (h *Hub) Presence() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.presence))
	for userID, conns := range h.presence {
		out[userID] = len(conns)
	}
	return out
}

// DisconnectUser closes every connection of userID and returns how many were closed.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.presence[userID]))
	for c := range h.presence[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return len(conns)
}

// Close disconnects every live connection. Their Handle loops unregister them.
func (h *Hub) Close() {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.memberships))
	for c := range h.memberships {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
