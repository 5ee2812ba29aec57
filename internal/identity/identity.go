// Package identity is the boundary to the external auth collaborator. Callers are
// authenticated upstream; this package only extracts the user id they were given.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"chatrelay/internal/models"
)

const (
	HeaderUserID = "X-User-Id"
	QueryUserID  = "userId"
)

type contextKey struct{}

// FromRequest resolves the caller id from the identity header, falling back to the
// userId query parameter for websocket upgrades where browsers cannot set headers.
func FromRequest(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		userID = strings.TrimSpace(r.URL.Query().Get(QueryUserID))
	}
	if userID == "" {
		return "", fmt.Errorf("missing user ID header (%s): %w", HeaderUserID, models.ErrUnauthenticated)
	}
	return userID, nil
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserID returns the caller id stored by WithUserID.
func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}
