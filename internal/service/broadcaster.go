package service

// Message types pushed to connected clients alongside room snapshots.
const (
	MsgRoomSnapshot       = "room_snapshot"
	MsgRoomFinished       = "room_finished"
	MsgPlayerDisqualified = "player_disqualified"
	MsgLeaderboardResult  = "leaderboard_result"
)

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastToAdmin(roomCode string, msgType string, payload interface{})
	BroadcastToPlayer(roomCode, playerID string, msgType string, payload interface{})
	BroadcastToRoom(roomCode string, msgType string, payload interface{})
}

// Watcher supervises a room until it finishes.
type Watcher interface {
	Watch(roomCode string)
}
