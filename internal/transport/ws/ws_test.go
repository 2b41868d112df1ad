package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escaperoom/internal/model"
	"escaperoom/internal/service"
)

type fakeFeed struct {
	mu         sync.Mutex
	heartbeats int
	cancelled  int
}

func (f *fakeFeed) Subscribe(_ context.Context, code string, onUpdate func(*model.Room, error)) (func(), error) {
	onUpdate(&model.Room{
		Code:      code,
		Status:    model.RoomPlaying,
		Questions: []model.Question{{Level: 1, Prompt: "q", Answers: model.AnswerSet{"secret"}}},
		Players:   map[string]*model.Player{
			"p1": {ID: "p1", Identifier: "alice-private-id", Name: "Alice"},
		},
	}, nil)
	return func() {
		f.mu.Lock()
		f.cancelled++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) Heartbeat(context.Context, string) error {
	f.mu.Lock()
	f.heartbeats++
	f.mu.Unlock()
	return nil
}

func (f *fakeFeed) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats, f.cancelled
}

type wsEnv struct {
	hub  *Hub
	auth *service.AuthService
	feed *fakeFeed
	url  string
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	env := &wsEnv{hub: NewHub(), auth: service.NewAuthService("secret", time.Hour), feed: &fakeFeed{}}
	r := mux.NewRouter()
	r.HandleFunc("/v1/ws/rooms/{code}", NewHandler(env.hub, env.auth, env.feed).RoomWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	env.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/rooms/"
	return env
}

func (e *wsEnv) dial(t *testing.T, code string, role model.RoomRole, playerID string) *websocket.Conn {
	t.Helper()
	token, err := e.auth.GenerateRoomToken(code, role, playerID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(e.url+code+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRoomWS_SnapshotIsRedacted(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "ABC123", model.RolePlayer, "p1")

	msg := readMessage(t, conn)
	assert.Equal(t, MessageType(service.MsgRoomSnapshot), msg.Type)
	var room model.Room
	require.NoError(t, json.Unmarshal(msg.Payload, &room))
	assert.Equal(t, "ABC123", room.Code)
	require.Len(t, room.Questions, 1)
	assert.Nil(t, room.Questions[0].Answers)
	assert.NotContains(t, string(msg.Payload), "secret")
	require.Contains(t, room.Players, "p1")
	assert.Equal(t, "Alice", room.Players["p1"].Name)
	assert.NotContains(t, string(msg.Payload), "alice-private-id")
}

func TestRoomWS_RejectsBadTokens(t *testing.T) {
	env := newWSEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.url+"ABC123", nil)
	require.Error(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	token, err := env.auth.GenerateRoomToken("OTHER1", model.RoleAdmin, "")
	require.NoError(t, err)
	_, resp, err = websocket.DefaultDialer.Dial(env.url+"ABC123?token="+token, nil)
	require.Error(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestRoomWS_AdminHeartbeat(t *testing.T) {
	env := newWSEnv(t)
	admin := env.dial(t, "ABC123", model.RoleAdmin, "")
	player := env.dial(t, "ABC123", model.RolePlayer, "p1")
	readMessage(t, admin)
	readMessage(t, player)

	require.NoError(t, admin.WriteJSON(Message{Type: MsgHeartbeat}))
	assert.Eventually(t, func() bool {
		hb, _ := env.feed.counts()
		return hb == 1
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, player.WriteJSON(Message{Type: MsgHeartbeat}))
	assert.Equal(t, MsgError, readMessage(t, player).Type)
	hb, _ := env.feed.counts()
	assert.Equal(t, 1, hb)
}

func TestHub_TargetedBroadcasts(t *testing.T) {
	env := newWSEnv(t)
	admin := env.dial(t, "ABC123", model.RoleAdmin, "")
	p1 := env.dial(t, "ABC123", model.RolePlayer, "p1")
	p2 := env.dial(t, "ABC123", model.RolePlayer, "p2")
	for _, c := range []*websocket.Conn{admin, p1, p2} {
		readMessage(t, c)
	}

	env.hub.BroadcastToPlayer("ABC123", "p2", service.MsgPlayerDisqualified, map[string]string{"playerId": "p2"})
	env.hub.BroadcastToAdmin("ABC123", service.MsgPlayerDisqualified, map[string]string{"playerId": "p2"})
	env.hub.BroadcastToRoom("ABC123", service.MsgRoomFinished, map[string]string{"reason": "admin"})
	env.hub.BroadcastToRoom("OTHER1", service.MsgRoomFinished, nil)

	assert.Equal(t, MessageType(service.MsgPlayerDisqualified), readMessage(t, p2).Type)
	assert.Equal(t, MessageType(service.MsgRoomFinished), readMessage(t, p2).Type)
	assert.Equal(t, MessageType(service.MsgPlayerDisqualified), readMessage(t, admin).Type)
	assert.Equal(t, MessageType(service.MsgRoomFinished), readMessage(t, admin).Type)
	// p1 was not targeted by the first two messages.
	assert.Equal(t, MessageType(service.MsgRoomFinished), readMessage(t, p1).Type)
}

func TestRoomWS_DisconnectUnregisters(t *testing.T) {
	env := newWSEnv(t)
	conn := env.dial(t, "ABC123", model.RolePlayer, "p1")
	readMessage(t, conn)
	assert.Equal(t, 1, env.hub.Connections())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, cancelled := env.feed.counts()
		return env.hub.Connections() == 0 && cancelled == 1
	}, 3*time.Second, 10*time.Millisecond)
}
