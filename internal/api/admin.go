package api

import (
	"net/http"
	"sort"
)

type presenceHub interface {
	Presence() map[string]int
	DisconnectUser(userID string) int
}

// AdminHandler serves operator endpoints. It is mounted on the admin listener only.
type AdminHandler struct {
	hub presenceHub
}

func NewAdminHandler(hub presenceHub) *AdminHandler {
	return &AdminHandler{hub: hub}
}

type PresenceEntry struct {
	UserID      string `json:"userId"`
	Connections int    `json:"connections"`
}

type DisconnectResponse struct {
	UserID string `json:"userId"`
	Closed int    `json:"closed"`
}

func (h *AdminHandler) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	presence := h.hub.Presence()
	entries := make([]PresenceEntry, 0, len(presence))
	for userID, n := range presence {
		entries = append(entries, PresenceEntry{UserID: userID, Connections: n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	writeJSON(w, http.StatusOK, entries)
}

func (h *AdminHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, DisconnectResponse{})
		return
	}
	writeJSON(w, http.StatusOK, DisconnectResponse{UserID: userID, Closed: h.hub.DisconnectUser(userID)})
}
