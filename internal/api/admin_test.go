package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubPresence struct {
	online       map[string]int
	disconnected []string
}

func (s *stubPresence) Presence() map[string]int {
	return s.online
}

func (s *stubPresence) DisconnectUser(userID string) int {
	s.disconnected = append(s.disconnected, userID)
	n := s.online[userID]
	delete(s.online, userID)
	return n
}

func TestAdminHandler(t *testing.T) {
	hub := &stubPresence{online: map[string]int{"bob": 2, "alice": 1}}
	h := NewAdminHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/presence", h.PresenceHandler)
	mux.HandleFunc("POST /admin/users/{id}/disconnect", h.DisconnectHandler)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/presence", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var entries []PresenceEntry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].UserID != "alice" || entries[1].Connections != 2 {
		t.Errorf("unexpected presence %+v", entries)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/users/bob/disconnect", nil))
	var resp DisconnectResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.UserID != "bob" || resp.Closed != 2 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(hub.disconnected) != 1 || hub.disconnected[0] != "bob" {
		t.Errorf("DisconnectUser not called for bob: %v", hub.disconnected)
	}
}
