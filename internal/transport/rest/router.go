package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"escaperoom/internal/metrics"
	"escaperoom/internal/service"
	"escaperoom/internal/tracing"
	"escaperoom/internal/transport/rest/handler"
	"escaperoom/internal/transport/rest/middleware"
	"escaperoom/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService        *service.AuthService
	RoomService        *service.RoomService
	LeaderboardService *service.LeaderboardService
	WSHub              *ws.Hub
	RateLimiter        *middleware.RateLimiter
	// AllowedOrigins is a comma-separated CORS allow list.
	AllowedOrigins string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	roomHandler := handler.NewRoomHandler(c.RoomService)
	playerHandler := handler.NewPlayerHandler(c.RoomService)
	leaderboardHandler := handler.NewLeaderboardHandler(c.LeaderboardService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.RoomService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(middleware.CORS(splitOrigins(c.AllowedOrigins)))
	r.Use(metrics.Middleware)
	r.Use(tracing.Middleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()
	if c.RateLimiter != nil {
		v1.Use(c.RateLimiter.Middleware)
	}

	// WebSocket route (token in query param)
	v1.HandleFunc("/ws/rooms/{code}", wsHandler.RoomWS).Methods("GET")

	// Public routes, identity optional
	public := v1.NewRoute().Subrouter()
	public.Use(authMW.OptionalIdentity)
	public.HandleFunc("/auth/identity", authHandler.Identity).Methods("POST", "OPTIONS")
	public.HandleFunc("/rooms", roomHandler.Create).Methods("POST", "OPTIONS")
	public.HandleFunc("/rooms/{code}/join", roomHandler.Join).Methods("POST", "OPTIONS")
	public.HandleFunc("/leaderboards/{difficulty}/{levels:[0-9]+}", leaderboardHandler.Global).Methods("GET", "OPTIONS")

	// Any room token
	roomRoutes := v1.NewRoute().Subrouter()
	roomRoutes.Use(authMW.RequireRoom)
	roomRoutes.HandleFunc("/rooms/{code}", roomHandler.Get).Methods("GET", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{code}/leaderboard", roomHandler.Leaderboard).Methods("GET", "OPTIONS")
	roomRoutes.HandleFunc("/rooms/{code}/levels/{level:[0-9]+}/minigame", roomHandler.MiniGame).Methods("GET", "OPTIONS")

	// Admin routes
	adminRoutes := v1.NewRoute().Subrouter()
	adminRoutes.Use(authMW.RequireAdmin)
	adminRoutes.HandleFunc("/rooms/{code}/config", roomHandler.SetConfig).Methods("PUT", "OPTIONS")
	adminRoutes.HandleFunc("/rooms/{code}/start", roomHandler.Start).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/rooms/{code}/end", roomHandler.End).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/rooms/{code}/heartbeat", roomHandler.Heartbeat).Methods("POST", "OPTIONS")
	adminRoutes.HandleFunc("/rooms/{code}/players/{id}/disqualify", roomHandler.Disqualify).Methods("POST", "OPTIONS")

	// Player routes
	playerRoutes := v1.NewRoute().Subrouter()
	playerRoutes.Use(authMW.RequirePlayer)
	playerRoutes.HandleFunc("/rooms/{code}/ready", playerHandler.ToggleReady).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/name", playerHandler.Rename).Methods("PUT", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/answers", playerHandler.SubmitAnswer).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/minigames", playerHandler.SubmitMiniGame).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/warnings", playerHandler.AddWarning).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/giveup", playerHandler.GiveUp).Methods("POST", "OPTIONS")
	playerRoutes.HandleFunc("/rooms/{code}/leave", playerHandler.Leave).Methods("POST", "OPTIONS")

	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
