package handler

import (
	"net/http"

	"escaperoom/internal/service"
	"escaperoom/internal/transport/rest/middleware"
)

// PlayerHandler handles the endpoints a seated player acts through. The
// player id always comes from the room token.
type PlayerHandler struct {
	roomSvc *service.RoomService
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(roomSvc *service.RoomService) *PlayerHandler {
	return &PlayerHandler{roomSvc: roomSvc}
}

// ToggleReady handles POST /v1/rooms/{code}/ready
func (h *PlayerHandler) ToggleReady(w http.ResponseWriter, r *http.Request) {
	ready, err := h.roomSvc.ToggleReady(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

// Rename handles PUT /v1/rooms/{code}/name
func (h *PlayerHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}

	if err := h.roomSvc.Rename(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context()), req.Name); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitAnswerRequest is the request body for answering a riddle level
type SubmitAnswerRequest struct {
	Level  int    `json:"level"`
	Answer string `json:"answer"`
}

// SubmitAnswer handles POST /v1/rooms/{code}/answers
func (h *PlayerHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req SubmitAnswerRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.roomSvc.SubmitAnswer(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context()), req.Level, req.Answer)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// SubmitMiniGame handles POST /v1/rooms/{code}/minigames
func (h *PlayerHandler) SubmitMiniGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level   int  `json:"level"`
		Success bool `json:"success"`
	}
	if !decode(w, r, &req) {
		return
	}

	res, err := h.roomSvc.SubmitMiniGameResult(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context()), req.Level, req.Success)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// AddWarning handles POST /v1/rooms/{code}/warnings
func (h *PlayerHandler) AddWarning(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &req) {
		return
	}

	count, err := h.roomSvc.AddWarning(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context()), req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"warnings": count})
}

// GiveUp handles POST /v1/rooms/{code}/giveup
func (h *PlayerHandler) GiveUp(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.GiveUp(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leave handles POST /v1/rooms/{code}/leave
func (h *PlayerHandler) Leave(w http.ResponseWriter, r *http.Request) {
	if err := h.roomSvc.Leave(r.Context(), roomCode(r), middleware.GetPlayerID(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
