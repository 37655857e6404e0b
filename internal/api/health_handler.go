package api

import "net/http"

// RoomCounter reports how many rooms currently have at least one
// connected participant, backing the /health endpoint.
type RoomCounter interface {
	ActiveRoomCount() int
}

// HealthHandler serves spec 6.2's liveness endpoint.
type HealthHandler struct {
	rooms RoomCounter
}

func NewHealthHandler(rooms RoomCounter) *HealthHandler {
	return &HealthHandler{rooms: rooms}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"activeRooms": h.rooms.ActiveRoomCount(),
	})
}
