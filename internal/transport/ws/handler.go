package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"escaperoom/internal/logger"
	"escaperoom/internal/model"
	"escaperoom/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS allow list on REST
	},
}

// RoomFeed is what a socket needs from the room service.
type RoomFeed interface {
	Subscribe(ctx context.Context, code string, onUpdate func(*model.Room, error)) (func(), error)
	Heartbeat(ctx context.Context, code string) error
}

// Handler handles WebSocket connections
type Handler struct {
	hub     *Hub
	authSvc *service.AuthService
	rooms   RoomFeed
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, authSvc *service.AuthService, rooms RoomFeed) *Handler {
	return &Handler{
		hub:     hub,
		authSvc: authSvc,
		rooms:   rooms,
	}
}

// RoomWS handles GET /v1/ws/rooms/{code}?token=. The socket receives a
// redacted room snapshot on connect and after every change, plus the
// broadcaster's targeted messages.
func (h *Handler) RoomWS(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])
	token := r.URL.Query().Get("token")

	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.authSvc.ValidateRoomToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if claims.RoomCode != code {
		http.Error(w, "token not valid for this room", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &Connection{
		RoomCode: code,
		PlayerID: claims.PlayerID,
		IsAdmin:  claims.Role == model.RoleAdmin,
		Send:     make(chan []byte, 256),
	}
	h.hub.Register(conn)

	ctx, cancel := context.WithCancel(context.Background())
	stop, err := h.rooms.Subscribe(ctx, code, func(room *model.Room, err error) {
		if err != nil {
			h.hub.SendTo(conn, MsgError, map[string]string{"error": err.Error()})
			return
		}
		h.hub.SendTo(conn, MessageType(service.MsgRoomSnapshot), room.Redacted())
	})
	if err != nil {
		logger.Log.Warn("room feed unavailable", zap.String("room", code), zap.Error(err))
		h.hub.SendTo(conn, MsgError, map[string]string{"error": "room feed unavailable"})
		stop = func() {}
	}

	logger.Log.Info("websocket connected",
		zap.String("room", code),
		zap.String("player", claims.PlayerID),
		zap.String("role", string(claims.Role)),
	)

	go h.writePump(wsConn, conn)
	go h.readPump(ctx, wsConn, conn, func() {
		stop()
		cancel()
	})
}

func (h *Handler) readPump(ctx context.Context, wsConn *websocket.Conn, conn *Connection, closeFeed func()) {
	defer func() {
		closeFeed()
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Warn("websocket read error", zap.String("room", conn.RoomCode), zap.Error(err))
			}
			break
		}
		h.handleMessage(ctx, conn, data)
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *Connection, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.hub.SendTo(conn, MsgError, map[string]string{"error": "invalid message"})
		return
	}

	switch msg.Type {
	case MsgHeartbeat:
		if !conn.IsAdmin {
			h.hub.SendTo(conn, MsgError, map[string]string{"error": "only the admin sends heartbeats"})
			return
		}
		if err := h.rooms.Heartbeat(ctx, conn.RoomCode); err != nil {
			logger.Log.Warn("heartbeat failed", zap.String("room", conn.RoomCode), zap.Error(err))
		}
	default:
		h.hub.SendTo(conn, MsgError, map[string]string{"error": "unknown message type"})
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := wsConn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
