package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/observer/broker/internal/auth"
	"github.com/observer/broker/internal/database"
	"github.com/observer/broker/internal/domain"
)

// RoomHandler is the Room Store's REST surface: create and look up rooms.
type RoomHandler struct {
	rooms  *database.RoomRepository
	logger *slog.Logger
}

func NewRoomHandler(rooms *database.RoomRepository, logger *slog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, logger: logger}
}

type createRoomRequest struct {
	Name               string `json:"name"`
	IsPrivate          bool   `json:"isPrivate"`
	Password           string `json:"password"`
	WaitingRoomEnabled bool   `json:"waitingRoomEnabled"`
}

// CreateRoom godoc
//
//	@Summary		Create a room
//	@Description	Create a new room; the caller becomes its creator
//	@Tags			rooms
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		createRoomRequest	true	"Room options"
//	@Success		201		{object}	map[string]interface{}
//	@Failure		400		{object}	map[string]string
//	@Failure		401		{object}	map[string]string
//	@Router			/api/rooms [post]
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Name) < 1 || len(req.Name) > 50 {
		writeError(w, http.StatusBadRequest, "name must be 1-50 characters")
		return
	}

	room, err := h.rooms.CreateRoom(r.Context(), req.Name, userID, domain.CreateRoomOptions{
		IsPrivate:          req.IsPrivate,
		Password:           req.Password,
		WaitingRoomEnabled: req.WaitingRoomEnabled,
	})
	if err != nil {
		h.logger.Error("create room failed", "error", err)
		writeError(w, http.StatusBadRequest, "failed to create room")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"room": room})
}

// GetRoom godoc
//
//	@Summary		Get a room
//	@Description	Look up a room by id; auth is optional
//	@Tags			rooms
//	@Produce		json
//	@Param			roomId	path		string	true	"Room id"
//	@Success		200		{object}	map[string]interface{}
//	@Failure		404		{object}	map[string]string
//	@Router			/api/rooms/{roomId} [get]
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomId")

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		h.logger.Error("get room failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"room": room})
}
