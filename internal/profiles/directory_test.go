package profiles

import (
	"errors"
	"sort"
	"testing"

	"chatrelay/internal/models"
)

type memStore struct {
	profiles map[string]models.UserProfile
	gets     int
	failGet  error
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]models.UserProfile)}
}

func (m *memStore) UpsertProfile(p models.UserProfile) error {
	m.profiles[p.ID] = p
	return nil
}

func (m *memStore) GetProfile(id string) (models.UserProfile, error) {
	m.gets++
	if m.failGet != nil {
		return models.UserProfile{}, m.failGet
	}
	p, ok := m.profiles[id]
	if !ok {
		return models.UserProfile{}, models.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListProfiles() ([]models.UserProfile, error) {
	var list []models.UserProfile
	for _, p := range m.profiles {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].DisplayName < list[j].DisplayName })
	return list, nil
}

func TestDirectory_Sync(t *testing.T) {
	tests := []struct {
		name    string
		req     SyncRequest
		want    string
		wantErr bool
	}{
		{"Valid", SyncRequest{DisplayName: "Alice", AvatarURL: "a.png"}, "Alice", false},
		{"Trimmed", SyncRequest{DisplayName: "  Bob "}, "Bob", false},
		{"Sanitized", SyncRequest{DisplayName: "<script>x</script>Eve"}, "Eve", false},
		{"Missing", SyncRequest{}, "", true},
		{"Only markup", SyncRequest{DisplayName: "<script>x</script>"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory(newMemStore())
			got, err := d.Sync("u1", tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Sync() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if got.DisplayName != tt.want {
				t.Errorf("DisplayName = %q, want %q", got.DisplayName, tt.want)
			}
			if got.LastSeenAt.IsZero() {
				t.Error("expected lastSeenAt to be stamped")
			}
		})
	}
}

func TestDirectory_GetCaches(t *testing.T) {
	store := newMemStore()
	store.profiles["u1"] = models.UserProfile{ID: "u1", DisplayName: "Alice"}
	d := NewDirectory(store)

	for i := 0; i < 3; i++ {
		p, err := d.Get("u1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if p.DisplayName != "Alice" {
			t.Errorf("unexpected profile %+v", p)
		}
	}
	if store.gets != 1 {
		t.Errorf("expected 1 store read, got %d", store.gets)
	}
}

func TestDirectory_Resolve(t *testing.T) {
	store := newMemStore()
	d := NewDirectory(store)

	p := d.Resolve("ghost")
	if p.DisplayName != PlaceholderName || p.AvatarURL != PlaceholderAvatar {
		t.Errorf("expected placeholder, got %+v", p)
	}

	if _, err := d.Sync("u1", SyncRequest{DisplayName: "Alice", AvatarURL: "a.png"}); err != nil {
		t.Fatal(err)
	}
	p = d.Resolve("u1")
	if p.DisplayName != "Alice" || p.AvatarURL != "a.png" {
		t.Errorf("unexpected profile %+v", p)
	}

	store.failGet = errors.New("disk on fire")
	p = d.Resolve("u2")
	if p.DisplayName != PlaceholderName {
		t.Errorf("expected placeholder on store failure, got %+v", p)
	}
}
