package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"escaperoom/internal/model"
	"escaperoom/internal/service"
	"escaperoom/internal/transport/rest/middleware"
)

// RoomHandler handles room lifecycle endpoints
type RoomHandler struct {
	roomSvc *service.RoomService
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(roomSvc *service.RoomService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc}
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	AdminName string            `json:"adminName"`
	Mode      model.SessionMode `json:"mode"`
}

// CreateRoomResponse never carries accepted answers.
type CreateRoomResponse struct {
	Room     *model.Room `json:"room"`
	Token    string      `json:"token"`
	PlayerID string      `json:"playerId,omitempty"`
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.roomSvc.Create(r.Context(), service.CreateRoomInput{
		AdminName: req.AdminName,
		Mode:      req.Mode,
		Identity:  middleware.GetIdentity(r.Context()),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateRoomResponse{
		Room:     res.Room.Redacted(),
		Token:    res.Token,
		PlayerID: res.PlayerID,
	})
}

// Get handles GET /v1/rooms/{code}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.Get(r.Context(), roomCode(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room.Redacted())
}

// JoinRequest is the request body for joining a room
type JoinRequest struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// Join handles POST /v1/rooms/{code}/join. A bearer identity supplies the
// identifier when the body omits it.
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if !decode(w, r, &req) {
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if req.Identifier == "" && identity != nil {
		req.Identifier = identity.UserID
		if req.Name == "" {
			req.Name = identity.DisplayName
		}
	}

	resp, err := h.roomSvc.Join(r.Context(), service.JoinInput{
		Code:       roomCode(r),
		Identifier: req.Identifier,
		Name:       req.Name,
		Identity:   identity,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetConfig handles PUT /v1/rooms/{code}/config
func (h *RoomHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty      string `json:"difficulty"`
		DurationMinutes int    `json:"durationMinutes"`
		TotalLevels     int    `json:"totalLevels"`
	}
	if !decode(w, r, &req) {
		return
	}
	d, err := model.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
		return
	}

	room, err := h.roomSvc.SetConfig(r.Context(), roomCode(r), service.ConfigInput{
		Difficulty:      d,
		DurationMinutes: req.DurationMinutes,
		TotalLevels:     req.TotalLevels,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room.Redacted())
}

// Start handles POST /v1/rooms/{code}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.Start(r.Context(), roomCode(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room.Redacted())
}

// End handles POST /v1/rooms/{code}/end
func (h *RoomHandler) End(w http.ResponseWriter, r *http.Request) {
	room, err := h.roomSvc.End(r.Context(), roomCode(r), false)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, room.Redacted())
}

// Heartbeat handles POST /v1/rooms/{code}/heartbeat
func (h *RoomHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.Heartbeat(r.Context(), roomCode(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Disqualify handles POST /v1/rooms/{code}/players/{id}/disqualify
func (h *RoomHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.Disqualify(r.Context(), roomCode(r), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leaderboard handles GET /v1/rooms/{code}/leaderboard
func (h *RoomHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.roomSvc.RoomLeaderboard(r.Context(), roomCode(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"leaderboard": standings})
}

// MiniGame handles GET /v1/rooms/{code}/levels/{level}/minigame
func (h *RoomHandler) MiniGame(w http.ResponseWriter, r *http.Request) {
	level, err := strconv.Atoi(mux.Vars(r)["level"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_level", "level must be a number")
		return
	}

	params, err := h.roomSvc.MiniGameParams(r.Context(), roomCode(r), level)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, params)
}
