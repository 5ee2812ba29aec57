package profiles

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chatrelay/internal/content"
	"chatrelay/internal/models"

	"github.com/c-pro/geche"
)

// Sender metadata used when a user never synced a profile.
const (
	PlaceholderName   = "You"
	PlaceholderAvatar = ""
)

type profileStore interface {
	UpsertProfile(profile models.UserProfile) error
	GetProfile(id string) (models.UserProfile, error)
	ListProfiles() ([]models.UserProfile, error)
}

type SyncRequest struct {
	DisplayName string `json:"displayName" validate:"required"`
	AvatarURL   string `json:"avatarUrl"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// Directory serves user profiles from the store through an in-memory cache.
type Directory struct {
	store profileStore
	cache geche.Geche[string, models.UserProfile]
	now   func() time.Time
}

func NewDirectory(store profileStore) *Directory {
	return &Directory{
		store: store,
		cache: geche.NewMapCache[string, models.UserProfile](),
		now:   time.Now,
	}
}

// Sync creates or replaces the caller's profile.
func (d *Directory) Sync(userID string, req SyncRequest) (models.UserProfile, error) {
	displayName := strings.TrimSpace(content.Sanitize(strings.TrimSpace(req.DisplayName)))
	if displayName == "" {
		return models.UserProfile{}, fmt.Errorf("displayName is required: %w", models.ErrInvalidArgument)
	}

	profile := models.UserProfile{
		ID:          userID,
		DisplayName: displayName,
		AvatarURL:   strings.TrimSpace(req.AvatarURL),
		Email:       strings.TrimSpace(req.Email),
		LastSeenAt:  d.now().UTC(),
	}
	if err := d.store.UpsertProfile(profile); err != nil {
		return models.UserProfile{}, err
	}
	d.cache.Set(userID, profile)
	return profile, nil
}

// Get returns a profile, reading through to the store on a cache miss.
func (d *Directory) Get(userID string) (models.UserProfile, error) {
	if profile, err := d.cache.Get(userID); err == nil {
		return profile, nil
	}
	profile, err := d.store.GetProfile(userID)
	if err != nil {
		return models.UserProfile{}, err
	}
	d.cache.Set(userID, profile)
	return profile, nil
}

// List returns every profile ordered by display name.
func (d *Directory) List() ([]models.UserProfile, error) {
	return d.store.ListProfiles()
}

// Resolve returns the profile used to stamp a sent message. Users without a
// profile get placeholder metadata instead of an error.
func (d *Directory) Resolve(userID string) models.UserProfile {
	profile, err := d.Get(userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Warn("profile lookup failed", "user_id", userID, "error", err)
		}
		return models.UserProfile{ID: userID, DisplayName: PlaceholderName, AvatarURL: PlaceholderAvatar}
	}
	return profile
}
