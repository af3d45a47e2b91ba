package api

import (
	"encoding/json"
	"net/http"

	"docsync/internal/collab"

	"github.com/gorilla/mux"
)

// Handler exposes the read-only HTTP surface over the coordination layer. All
// presence mutation happens over the WebSocket; these endpoints exist for
// health checks and operator inspection.
type Handler struct {
	hub       *collab.Hub
	wsHandler *collab.WebSocketHandler
}

func NewHandler(hub *collab.Hub, wsHandler *collab.WebSocketHandler) *Handler {
	return &Handler{hub: hub, wsHandler: wsHandler}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type roomSummary struct {
	DocumentID string `json:"documentId"`
	Members    int    `json:"members"`
}

// ListRooms returns every occupied room with its member count.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	counts := h.hub.RoomCounts()
	rooms := make([]roomSummary, 0, len(counts))
	for docID, n := range counts {
		rooms = append(rooms, roomSummary{DocumentID: docID, Members: n})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// RoomPresence returns one room's active users and cursor snapshot.
func (h *Handler) RoomPresence(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]
	users, cursors := h.hub.RoomPresence(documentID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"documentId":  documentID,
		"activeUsers": users,
		"cursors":     cursors,
	})
}

// HandleWebSocket upgrades the client's persistent connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHandler.HandleConnection(w, r)
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
