package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/repository"
	"escaperoom/internal/service"
	"escaperoom/internal/transport/rest/middleware"
	"escaperoom/internal/transport/ws"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T, limiter *middleware.RateLimiter) *apiClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.DefaultGameConfig()
	authSvc := service.NewAuthService("test-secret", time.Hour)
	lbSvc := service.NewLeaderboardService(cache.NewLeaderboardCache(client), cfg.LeaderboardTop)
	// No API key: every riddle is the built-in fallback ("piano" on Easy).
	puzzles := service.NewPuzzleService(config.AIConfig{})
	roomSvc := service.NewRoomService(repository.NewMemoryRoomRepo(), cache.NewRoomEvents(client), lbSvc, puzzles, authSvc, cfg)
	hub := ws.NewHub()
	roomSvc.SetBroadcaster(hub)

	srv := httptest.NewServer(NewRouter(&Container{
		AuthService:        authSvc,
		RoomService:        roomSvc,
		LeaderboardService: lbSvc,
		WSHub:              hub,
		RateLimiter:        limiter,
		AllowedOrigins:     "https://play.example.com",
	}))
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

// do sends a JSON request and decodes the JSON response into out when set.
func (c *apiClient) do(method, path, token string, body interface{}, out interface{}) int {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.srv.URL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type created struct {
	Room struct {
		Code string `json:"code"`
		Mode string `json:"mode"`
	} `json:"room"`
	Token    string `json:"token"`
	PlayerID string `json:"playerId"`
}

type joined struct {
	PlayerID string `json:"playerId"`
	Token    string `json:"token"`
	Rejoined bool   `json:"rejoined"`
}

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Ready int    `json:"ready"`
	Total int    `json:"total"`
}

func (c *apiClient) createMultiplayer() created {
	c.t.Helper()
	var room created
	status := c.do("POST", "/v1/rooms", "", map[string]string{"adminName": "host", "mode": "multiplayer"}, &room)
	require.Equal(c.t, http.StatusCreated, status)
	return room
}

func (c *apiClient) join(code, identifier string) joined {
	c.t.Helper()
	var j joined
	status := c.do("POST", "/v1/rooms/"+code+"/join", "", map[string]string{"identifier": identifier, "name": identifier}, &j)
	require.Equal(c.t, http.StatusOK, status)
	return j
}

func TestMultiplayerFlow(t *testing.T) {
	api := newAPI(t, nil)
	room := api.createMultiplayer()
	code, admin := room.Room.Code, room.Token

	status := api.do("PUT", "/v1/rooms/"+code+"/config", admin,
		map[string]interface{}{"difficulty": "easy", "durationMinutes": 10, "totalLevels": 3}, nil)
	require.Equal(t, http.StatusOK, status)

	alice := api.join(code, "alice")
	bob := api.join(code, "bob")

	var e apiError
	status = api.do("POST", "/v1/rooms/"+code+"/start", admin, nil, &e)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_all_ready", e.Code)
	assert.Equal(t, 0, e.Ready)
	assert.Equal(t, 2, e.Total)

	for _, p := range []joined{alice, bob} {
		var ready map[string]bool
		require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/ready", p.Token, nil, &ready))
		assert.True(t, ready["ready"])
	}
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/start", admin, nil, nil))

	var snapshot map[string]interface{}
	require.Equal(t, http.StatusOK, api.do("GET", "/v1/rooms/"+code, alice.Token, nil, &snapshot))
	assert.Equal(t, "playing", snapshot["status"])
	questions := snapshot["questions"].([]interface{})
	require.Len(t, questions, 3)
	assert.Nil(t, questions[0].(map[string]interface{})["answer"], "answers never leave the server")
	assert.Equal(t, "minigame", questions[2].(map[string]interface{})["kind"])

	var res struct {
		Correct bool `json:"correct"`
	}
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/answers", alice.Token,
		map[string]interface{}{"level": 1, "answer": "violin"}, &res))
	assert.False(t, res.Correct)
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/answers", alice.Token,
		map[string]interface{}{"level": 1, "answer": "A Piano"}, &res))
	assert.True(t, res.Correct)

	status = api.do("POST", "/v1/rooms/"+code+"/answers", alice.Token, map[string]interface{}{"level": 1, "answer": "piano"}, &e)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "invalid_level", e.Code)

	var params map[string]interface{}
	require.Equal(t, http.StatusOK, api.do("GET", "/v1/rooms/"+code+"/levels/3/minigame", bob.Token, nil, &params))
	assert.NotEmpty(t, params["type"])
	assert.Equal(t, http.StatusUnprocessableEntity, api.do("GET", "/v1/rooms/"+code+"/levels/1/minigame", bob.Token, nil, nil))

	var warned map[string]int
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/warnings", bob.Token, map[string]string{"reason": "tab hidden"}, &warned))
	assert.Equal(t, 1, warned["warnings"])

	require.Equal(t, http.StatusNoContent, api.do("POST", "/v1/rooms/"+code+"/players/"+bob.PlayerID+"/disqualify", admin, nil, nil))
	status = api.do("POST", "/v1/rooms/"+code+"/answers", bob.Token, map[string]interface{}{"level": 1, "answer": "piano"}, &e)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "player_inactive", e.Code)

	var standings struct {
		Leaderboard []struct {
			Rank     int    `json:"rank"`
			PlayerID string `json:"playerId"`
		} `json:"leaderboard"`
	}
	require.Equal(t, http.StatusOK, api.do("GET", "/v1/rooms/"+code+"/leaderboard", admin, nil, &standings))
	require.Len(t, standings.Leaderboard, 2)
	assert.Equal(t, alice.PlayerID, standings.Leaderboard[0].PlayerID)

	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/end", admin, nil, &snapshot))
	assert.Equal(t, "finished", snapshot["status"])
	assert.Equal(t, false, snapshot["abandonedByAdmin"])
}

func TestJoinErrors(t *testing.T) {
	api := newAPI(t, nil)
	code := api.createMultiplayer().Room.Code

	var e apiError
	assert.Equal(t, http.StatusNotFound, api.do("POST", "/v1/rooms/NOPE42/join", "", map[string]string{"identifier": "x"}, &e))
	assert.Equal(t, "room_not_found", e.Code)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		api.join(code, id)
	}
	assert.Equal(t, http.StatusConflict, api.do("POST", "/v1/rooms/"+code+"/join", "", map[string]string{"identifier": "f"}, &e))
	assert.Equal(t, "room_full", e.Code)

	// Rejoin is not a new seat.
	var again joined
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/join", "", map[string]string{"identifier": "a", "name": "Ann"}, &again))
	assert.True(t, again.Rejoined)

	assert.Equal(t, http.StatusBadRequest, api.do("POST", "/v1/rooms/"+code+"/join", "", "not an object", &e))
}

func TestAuthorization(t *testing.T) {
	api := newAPI(t, nil)
	room := api.createMultiplayer()
	other := api.createMultiplayer()
	player := api.join(room.Room.Code, "alice")

	assert.Equal(t, http.StatusUnauthorized, api.do("GET", "/v1/rooms/"+room.Room.Code, "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, api.do("GET", "/v1/rooms/"+room.Room.Code, "garbage", nil, nil))
	assert.Equal(t, http.StatusForbidden, api.do("GET", "/v1/rooms/"+room.Room.Code, other.Token, nil, nil))
	assert.Equal(t, http.StatusForbidden, api.do("POST", "/v1/rooms/"+room.Room.Code+"/start", player.Token, nil, nil))
	// A multiplayer admin holds no seat.
	assert.Equal(t, http.StatusForbidden, api.do("POST", "/v1/rooms/"+room.Room.Code+"/ready", room.Token, nil, nil))

	// Lower-case codes in the path are accepted.
	var snapshot map[string]interface{}
	assert.Equal(t, http.StatusOK, api.do("GET", "/v1/rooms/"+lower(room.Room.Code), player.Token, nil, &snapshot))
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestSoloFlowAndGlobalLeaderboard(t *testing.T) {
	api := newAPI(t, nil)

	var e apiError
	assert.Equal(t, http.StatusUnauthorized, api.do("POST", "/v1/rooms", "", map[string]string{"mode": "solo"}, &e))

	var id struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/auth/identity", "", map[string]string{"displayName": "Ada"}, &id))

	var room created
	require.Equal(t, http.StatusCreated, api.do("POST", "/v1/rooms", id.Token, map[string]string{"mode": "solo"}, &room))
	require.NotEmpty(t, room.PlayerID)
	code := room.Room.Code

	require.Equal(t, http.StatusOK, api.do("PUT", "/v1/rooms/"+code+"/config", room.Token,
		map[string]interface{}{"difficulty": "Easy", "durationMinutes": 5, "totalLevels": 3}, nil))
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/start", room.Token, nil, nil))

	var res struct {
		Correct bool `json:"correct"`
	}
	require.Equal(t, http.StatusOK, api.do("POST", "/v1/rooms/"+code+"/answers", room.Token,
		map[string]interface{}{"level": 1, "answer": "keyboard"}, &res))
	assert.True(t, res.Correct)

	require.Equal(t, http.StatusNoContent, api.do("POST", "/v1/rooms/"+code+"/giveup", room.Token, nil, nil))

	var lb struct {
		Total      int  `json:"total"`
		PlayerRank *int `json:"playerRank"`
		Top        []struct {
			UserID          string `json:"userId"`
			CompletedLevels int    `json:"completedLevels"`
			GaveUp          bool   `json:"gaveUp"`
		} `json:"top"`
	}
	require.Equal(t, http.StatusOK, api.do("GET", "/v1/leaderboards/easy/3", id.Token, nil, &lb))
	assert.Equal(t, 1, lb.Total)
	require.NotNil(t, lb.PlayerRank)
	assert.Equal(t, 1, *lb.PlayerRank)
	require.Len(t, lb.Top, 1)
	assert.Equal(t, id.UserID, lb.Top[0].UserID)
	assert.Equal(t, 1, lb.Top[0].CompletedLevels)
	assert.True(t, lb.Top[0].GaveUp)

	var anon struct {
		PlayerRank *int `json:"playerRank"`
	}
	require.Equal(t, http.StatusOK, api.do("GET", "/v1/leaderboards/Easy/3", "", nil, &anon))
	assert.Nil(t, anon.PlayerRank)

	assert.Equal(t, http.StatusBadRequest, api.do("GET", "/v1/leaderboards/extreme/3", "", nil, nil))
}

func TestRateLimit(t *testing.T) {
	api := newAPI(t, middleware.NewRateLimiter(0.001, 1))

	assert.Equal(t, http.StatusCreated, api.do("POST", "/v1/rooms", "", map[string]string{"adminName": "host"}, nil))
	var e apiError
	assert.Equal(t, http.StatusTooManyRequests, api.do("POST", "/v1/rooms", "", map[string]string{"adminName": "host"}, &e))
	assert.Equal(t, "rate_limited", e.Code)

	// Reads are never limited.
	assert.Equal(t, http.StatusOK, api.do("GET", "/v1/leaderboards/Easy/3", "", nil, nil))
}

func TestCORSAndHealth(t *testing.T) {
	api := newAPI(t, nil)

	req, err := http.NewRequest(http.MethodOptions, api.srv.URL+"/v1/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://play.example.com")
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://play.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = api.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	var health map[string]string
	assert.Equal(t, http.StatusOK, api.do("GET", "/health", "", nil, &health))
	assert.Equal(t, "ok", health["status"])
}
