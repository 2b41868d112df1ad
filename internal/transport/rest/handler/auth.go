package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"escaperoom/internal/logger"
	"escaperoom/internal/model"
	"escaperoom/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Identity handles POST /v1/auth/identity
func (h *AuthHandler) Identity(w http.ResponseWriter, r *http.Request) {
	var req model.IdentityRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authSvc.IssueIdentity(req.DisplayName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// decode reads a JSON body. An empty body leaves dst untouched.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
	return false
}

func roomCode(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(mux.Vars(r)["code"]))
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: specific errors before the ones they wrap.
var errorMappings = []errorMapping{
	{service.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{service.ErrPlayerNotFound, http.StatusNotFound, "player_not_found"},
	{service.ErrRoomFull, http.StatusConflict, "room_full"},
	{service.ErrRoomNotJoinable, http.StatusConflict, "room_not_joinable"},
	{service.ErrConfigIncomplete, http.StatusConflict, "config_incomplete"},
	{service.ErrConfigLocked, http.StatusConflict, "config_locked"},
	{service.ErrAlreadyStarted, http.StatusConflict, "already_started"},
	{service.ErrNotAllReady, http.StatusConflict, "not_all_ready"},
	{service.ErrNoPlayers, http.StatusConflict, "no_players"},
	{service.ErrGameNotActive, http.StatusConflict, "game_not_active"},
	{service.ErrPlayerInactive, http.StatusConflict, "player_inactive"},
	{service.ErrInvalidConfig, http.StatusUnprocessableEntity, "invalid_config"},
	{service.ErrInvalidLevel, http.StatusUnprocessableEntity, "invalid_level"},
	{service.ErrInvalidMode, http.StatusUnprocessableEntity, "invalid_mode"},
	{service.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{service.ErrBackendUnavailable, http.StatusServiceUnavailable, "backend_unavailable"},
}

func writeServiceError(w http.ResponseWriter, err error) {
	var notReady *service.NotReadyError
	if errors.As(err, &notReady) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": err.Error(),
			"code":  "not_all_ready",
			"ready": notReady.Ready,
			"total": notReady.Total,
		})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	logger.Log.Error("unhandled request error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}
