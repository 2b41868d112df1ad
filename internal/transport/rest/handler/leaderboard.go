package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"escaperoom/internal/model"
	"escaperoom/internal/service"
	"escaperoom/internal/transport/rest/middleware"
)

// LeaderboardHandler serves the global per-category leaderboards
type LeaderboardHandler struct {
	leaderboardSvc *service.LeaderboardService
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(leaderboardSvc *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardSvc: leaderboardSvc}
}

// Global handles GET /v1/leaderboards/{difficulty}/{levels}. With an identity
// token the caller's rank is included even outside the top.
func (h *LeaderboardHandler) Global(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	d, err := model.ParseDifficulty(vars["difficulty"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	levels, err := strconv.Atoi(vars["levels"])
	if err != nil || levels <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_input", "levels must be a positive number")
		return
	}

	var userID string
	if id := middleware.GetIdentity(r.Context()); id != nil {
		userID = id.UserID
	}

	lb, err := h.leaderboardSvc.Global(r.Context(), model.LeaderboardCategory{Difficulty: d, TotalLevels: levels}, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, lb)
}
