package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/model"
	"escaperoom/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// staticContent answers every riddle level with "answer-<level>".
type staticContent struct{}

func (staticContent) Riddle(_ context.Context, _ model.Difficulty, level, _ int) model.Question {
	return model.Question{
		Level:   level,
		Kind:    model.PuzzleRiddle,
		Prompt:  fmt.Sprintf("riddle %d", level),
		Answers: model.AnswerSet{fmt.Sprintf("answer-%d", level)},
	}
}

type sentMessage struct {
	Room, Player, Type string
	Payload            interface{}
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (b *recordingBroadcaster) record(m sentMessage) {
	b.mu.Lock()
	b.sent = append(b.sent, m)
	b.mu.Unlock()
}

func (b *recordingBroadcaster) BroadcastToAdmin(room, msgType string, payload interface{}) {
	b.record(sentMessage{Room: room, Player: "admin", Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) BroadcastToPlayer(room, playerID, msgType string, payload interface{}) {
	b.record(sentMessage{Room: room, Player: playerID, Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) BroadcastToRoom(room, msgType string, payload interface{}) {
	b.record(sentMessage{Room: room, Player: "*", Type: msgType, Payload: payload})
}

func (b *recordingBroadcaster) count(player, msgType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.sent {
		if m.Player == player && m.Type == msgType {
			n++
		}
	}
	return n
}

type testEnv struct {
	rooms       *RoomService
	leaderboard *LeaderboardService
	auth        *AuthService
	repo        repository.RoomRepo
	events      cache.RoomEvents
	clock       *fakeClock
	bc          *recordingBroadcaster
	cfg         config.GameConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.DefaultGameConfig()
	clock := newFakeClock()
	repo := repository.NewMemoryRoomRepo()
	events := cache.NewRoomEvents(client)
	lb := NewLeaderboardService(cache.NewLeaderboardCache(client), cfg.LeaderboardTop)
	lb.now = clock.Now
	auth := NewAuthService("test-secret", time.Hour)

	rooms := NewRoomService(repo, events, lb, staticContent{}, auth, cfg)
	rooms.SetClock(clock.Now)
	bc := &recordingBroadcaster{}
	rooms.SetBroadcaster(bc)

	return &testEnv{rooms: rooms, leaderboard: lb, auth: auth, repo: repo, events: events, clock: clock, bc: bc, cfg: cfg}
}

func (e *testEnv) identity(userID, name string) *model.IdentityClaims {
	return &model.IdentityClaims{UserID: userID, DisplayName: name}
}

// multiplayerRoom creates a configured multiplayer room with n joined players.
func (e *testEnv) multiplayerRoom(t *testing.T, n int, levels int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	res, err := e.rooms.Create(ctx, CreateRoomInput{AdminName: "host", Mode: model.ModeMultiplayer})
	require.NoError(t, err)
	code := res.Room.Code

	_, err = e.rooms.SetConfig(ctx, code, ConfigInput{Difficulty: model.DifficultyEasy, DurationMinutes: 10, TotalLevels: levels})
	require.NoError(t, err)

	ids := make([]string, n)
	for i := range ids {
		j, err := e.rooms.Join(ctx, JoinInput{Code: code, Identifier: fmt.Sprintf("user-%d", i), Name: fmt.Sprintf("Player %d", i)})
		require.NoError(t, err)
		ids[i] = j.PlayerID
	}
	return code, ids
}

// soloRoom creates a configured solo room for user and returns its seat.
func (e *testEnv) soloRoom(t *testing.T, userID string, d model.Difficulty, levels int) (string, string) {
	t.Helper()
	ctx := context.Background()
	res, err := e.rooms.Create(ctx, CreateRoomInput{Mode: model.ModeSolo, Identity: e.identity(userID, "Solo "+userID)})
	require.NoError(t, err)

	_, err = e.rooms.SetConfig(ctx, res.Room.Code, ConfigInput{Difficulty: d, DurationMinutes: 30, TotalLevels: levels})
	require.NoError(t, err)
	return res.Room.Code, res.PlayerID
}

func (e *testEnv) readyAll(t *testing.T, code string, ids []string) {
	t.Helper()
	for _, id := range ids {
		ready, err := e.rooms.ToggleReady(context.Background(), code, id)
		require.NoError(t, err)
		require.True(t, ready)
	}
}

func (e *testEnv) player(t *testing.T, code, id string) *model.Player {
	t.Helper()
	room, err := e.rooms.Get(context.Background(), code)
	require.NoError(t, err)
	p, ok := room.Players[id]
	require.True(t, ok)
	return p
}

// clearLevel completes the player's current level whatever its kind.
func (e *testEnv) clearLevel(t *testing.T, code, id string) *LevelResult {
	t.Helper()
	ctx := context.Background()
	room, err := e.rooms.Get(ctx, code)
	require.NoError(t, err)
	p := room.Players[id]
	q := room.Question(p.CurrentLevel)
	require.NotNil(t, q)

	var res *LevelResult
	if q.Kind == model.PuzzleMiniGame {
		res, err = e.rooms.SubmitMiniGameResult(ctx, code, id, p.CurrentLevel, true)
	} else {
		res, err = e.rooms.SubmitAnswer(ctx, code, id, p.CurrentLevel, q.Answers[0])
	}
	require.NoError(t, err)
	require.True(t, res.Correct)
	return res
}
