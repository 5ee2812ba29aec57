package access

import (
	"fmt"

	"chatrelay/internal/models"

	"github.com/google/uuid"
)

type conversationGetter interface {
	GetConversation(id string) (models.Conversation, error)
}

// Guard checks conversation membership before any read or write.
type Guard struct {
	store conversationGetter
}

func NewGuard(store conversationGetter) *Guard {
	return &Guard{store: store}
}

// Authorize returns the conversation if callerID is one of its members.
func (g *Guard) Authorize(conversationID, callerID string) (models.Conversation, error) {
	if _, err := uuid.Parse(conversationID); err != nil {
		return models.Conversation{}, fmt.Errorf("invalid conversation id: %w", models.ErrInvalidArgument)
	}

	conv, err := g.store.GetConversation(conversationID)
	if err != nil {
		return models.Conversation{}, err
	}

	if !conv.HasMember(callerID) {
		return models.Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, models.ErrAccessDenied)
	}
	return conv, nil
}
