package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"escaperoom/internal/logger"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client message types
const (
	MsgHeartbeat MessageType = "heartbeat"
	MsgError     MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hub manages WebSocket connections per room and implements
// service.Broadcaster.
type Hub struct {
	// roomCode -> connections; only the run loop touches it
	rooms map[string]map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *BroadcastMessage
	direct     chan *directMessage
	count      chan chan int
}

// Connection represents a WebSocket connection
type Connection struct {
	RoomCode string
	PlayerID string // empty for a multiplayer admin
	IsAdmin  bool
	Send     chan []byte
}

// BroadcastMessage is a message to broadcast
type BroadcastMessage struct {
	RoomCode string
	ToAdmin  bool
	ToPlayer string // empty with ToAdmin unset means everyone in the room
	Message  *Message
}

type directMessage struct {
	conn *Connection
	data []byte
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	h := &Hub{
		rooms:      make(map[string]map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *BroadcastMessage, 256),
		direct:     make(chan *directMessage, 256),
		count:      make(chan chan int),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			if h.rooms[conn.RoomCode] == nil {
				h.rooms[conn.RoomCode] = make(map[*Connection]struct{})
			}
			h.rooms[conn.RoomCode][conn] = struct{}{}
			logger.Log.Debug("websocket registered",
				zap.String("room", conn.RoomCode),
				zap.String("player", conn.PlayerID),
				zap.Bool("admin", conn.IsAdmin),
			)

		case conn := <-h.unregister:
			conns, ok := h.rooms[conn.RoomCode]
			if !ok {
				continue
			}
			if _, ok := conns[conn]; ok {
				delete(conns, conn)
				close(conn.Send)
				if len(conns) == 0 {
					delete(h.rooms, conn.RoomCode)
				}
				logger.Log.Debug("websocket unregistered", zap.String("room", conn.RoomCode), zap.String("player", conn.PlayerID))
			}

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Message)
			if err != nil {
				continue
			}
			for conn := range h.rooms[msg.RoomCode] {
				switch {
				case msg.ToAdmin && !conn.IsAdmin:
					continue
				case msg.ToPlayer != "" && conn.PlayerID != msg.ToPlayer:
					continue
				}
				trySend(conn, data)
			}

		case dm := <-h.direct:
			// The connection may already be gone.
			if _, ok := h.rooms[dm.conn.RoomCode][dm.conn]; ok {
				trySend(dm.conn, dm.data)
			}

		case reply := <-h.count:
			n := 0
			for _, conns := range h.rooms {
				n += len(conns)
			}
			reply <- n
		}
	}
}

// trySend drops the message when the client is not keeping up.
func trySend(conn *Connection, data []byte) {
	select {
	case conn.Send <- data:
	default:
	}
}

// Register adds a connection
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Connections reports how many sockets are registered.
func (h *Hub) Connections() int {
	reply := make(chan int)
	h.count <- reply
	return <-reply
}

// SendTo delivers a message to one connection if it is still registered.
func (h *Hub) SendTo(conn *Connection, msgType MessageType, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		logger.Log.Warn("failed to encode websocket message", zap.String("type", string(msgType)), zap.Error(err))
		return
	}
	h.direct <- &directMessage{conn: conn, data: data}
}

// BroadcastToAdmin sends a message to the room admin (implements service.Broadcaster)
func (h *Hub) BroadcastToAdmin(roomCode string, msgType string, payload interface{}) {
	h.send(&BroadcastMessage{RoomCode: roomCode, ToAdmin: true}, msgType, payload)
}

// BroadcastToPlayer sends a message to a specific player (implements service.Broadcaster)
func (h *Hub) BroadcastToPlayer(roomCode, playerID string, msgType string, payload interface{}) {
	h.send(&BroadcastMessage{RoomCode: roomCode, ToPlayer: playerID}, msgType, payload)
}

// BroadcastToRoom sends a message to every connection of a room (implements service.Broadcaster)
func (h *Hub) BroadcastToRoom(roomCode string, msgType string, payload interface{}) {
	h.send(&BroadcastMessage{RoomCode: roomCode}, msgType, payload)
}

func (h *Hub) send(msg *BroadcastMessage, msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Warn("failed to encode websocket payload", zap.String("type", msgType), zap.Error(err))
		return
	}
	msg.Message = &Message{Type: MessageType(msgType), Payload: data}
	h.broadcast <- msg
}

func encode(msgType MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: msgType, Payload: data})
}
