package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"chatrelay/internal/identity"
	"chatrelay/internal/models"
	"chatrelay/internal/profiles"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type chatService interface {
	SendMessage(conversationID, callerID, text string) (models.Message, error)
	ListMessages(conversationID, callerID string) ([]models.Message, error)
	ListConversations(callerID string) ([]models.ConversationView, error)
	GetConversation(conversationID, callerID string) (models.ConversationView, error)
	EnsureConversation(callerID, targetUserID string) (models.ConversationView, error)
}

type userDirectory interface {
	Sync(userID string, req profiles.SyncRequest) (models.UserProfile, error)
	List() ([]models.UserProfile, error)
}

type API struct {
	chat      chatService
	directory userDirectory
}

func New(chat chatService, directory userDirectory) *API {
	return &API{chat: chat, directory: directory}
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Text           string `json:"text" validate:"required"`
}

type EnsureConversationRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
}

// RequireAuth rejects requests without a caller identity and stores it on the context.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := identity.FromRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r.WithContext(identity.WithUserID(r.Context(), userID)))
	}
}

func (a *API) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	views, err := a.chat.ListConversations(callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *API) EnsureConversationHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	var req EnsureConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	view, err := a.chat.EnsureConversation(callerID, req.TargetUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	view, err := a.chat.GetConversation(r.PathValue("id"), callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	messages, err := a.chat.ListMessages(r.PathValue("conversationId"), callerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	message, err := a.chat.SendMessage(req.ConversationID, callerID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (a *API) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := a.directory.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) SyncUserHandler(w http.ResponseWriter, r *http.Request) {
	callerID, _ := identity.UserID(r.Context())

	var req profiles.SyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	profile, err := a.directory.Sync(callerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, models.APIResponse{Message: "Not Found"})
}

// decodeJSON reads a size-limited JSON body into v and checks its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", models.ErrInvalidArgument)
	}
	if err := validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fmt.Errorf("%s is %s: %w", fieldErrs[0].Field(), fieldErrs[0].Tag(), models.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid request: %w", models.ErrInvalidArgument)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain error kinds to HTTP statuses. Internal failures are logged
// and answered with a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		message = "Internal server error"
	}
	writeJSON(w, status, models.APIResponse{Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
