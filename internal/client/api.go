package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatrelay/internal/identity"
	"chatrelay/internal/models"
)

// APIError is a non-2xx response from the chat server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// API is a REST client acting as one user.
type API struct {
	baseURL string
	userID  string
	http    *http.Client
}

func NewAPI(baseURL, userID string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		http:    httpClient,
	}
}

func (a *API) UserID() string {
	return a.userID
}

func (a *API) SyncProfile(ctx context.Context, displayName, avatarURL, email string) (models.UserProfile, error) {
	var profile models.UserProfile
	body := map[string]string{"displayName": displayName, "avatarUrl": avatarURL, "email": email}
	err := a.do(ctx, http.MethodPost, "/api/users/sync", body, &profile)
	return profile, err
}

func (a *API) ListUsers(ctx context.Context) ([]models.UserProfile, error) {
	var users []models.UserProfile
	err := a.do(ctx, http.MethodGet, "/api/users", nil, &users)
	return users, err
}

func (a *API) ListConversations(ctx context.Context) ([]models.ConversationView, error) {
	var list []models.ConversationView
	err := a.do(ctx, http.MethodGet, "/api/conversations", nil, &list)
	return list, err
}

func (a *API) EnsureConversation(ctx context.Context, targetUserID string) (models.ConversationView, error) {
	var view models.ConversationView
	err := a.do(ctx, http.MethodPost, "/api/conversations", map[string]string{"targetUserId": targetUserID}, &view)
	return view, err
}

func (a *API) GetConversation(ctx context.Context, conversationID string) (models.ConversationView, error) {
	var view models.ConversationView
	err := a.do(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID), nil, &view)
	return view, err
}

func (a *API) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := a.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(conversationID), nil, &messages)
	return messages, err
}

func (a *API) SendMessage(ctx context.Context, conversationID, text string) (models.Message, error) {
	var message models.Message
	body := map[string]string{"conversationId": conversationID, "text": text}
	err := a.do(ctx, http.MethodPost, "/api/messages", body, &message)
	return message, err
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(identity.HeaderUserID, a.userID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiResp models.APIResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil || apiResp.Message == "" {
			apiResp.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiResp.Message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
