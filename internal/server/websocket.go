package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsHub fans room events out to every subscribed connection. Delivery
// is fire-and-forget; a failed write drops the connection.
type wsHub struct {
	mu     sync.Mutex
	groups map[string]map[*websocket.Conn]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{
		groups: make(map[string]map[*websocket.Conn]struct{}),
	}
}

func (h *wsHub) Add(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		group = make(map[*websocket.Conn]struct{})
		h.groups[roomID] = group
	}
	group[conn] = struct{}{}
}

func (h *wsHub) Remove(roomID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[roomID]
	if group == nil {
		return
	}
	delete(group, conn)
	_ = conn.Close()
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

func (h *wsHub) Send(conn *websocket.Conn, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func (h *wsHub) Broadcast(roomID string, payload any) {
	h.mu.Lock()
	group := h.groups[roomID]
	conns := make([]*websocket.Conn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.Remove(roomID, conn)
		}
	}
}

// CloseRoom disconnects every subscriber of a room, used when the room
// is deleted.
func (h *wsHub) CloseRoom(roomID string) {
	h.mu.Lock()
	group := h.groups[roomID]
	delete(h.groups, roomID)
	h.mu.Unlock()
	for conn := range group {
		_ = conn.Close()
	}
}

func (h *wsHub) SubscriberCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[roomID])
}

// broadcast wraps a typed event envelope around a payload and fans it
// out to the room's subscribers.
func (s *Server) broadcast(roomID, eventType string, data any) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(roomID, map[string]any{
		"type": eventType,
		"data": data,
	})
}

type wsClientMessage struct {
	Type string `json:"type"`
}

// handleRoomWebsocket upgrades a subscriber connection. The caller
// must be authenticated and a current member of an active room; anyone
// else is rejected before the upgrade.
func (s *Server) handleRoomWebsocket(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	user, err := s.ids.Authenticate(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	allowed := false
	err = s.store.View(roomID, func(room *Room) error {
		allowed = room.IsActive && room.findPlayerByUser(user.ID) != nil
		return nil
	})
	if err != nil || !allowed {
		writeError(w, http.StatusForbidden, "not a member of this room")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.log.Info("ws connected",
		zap.String("room_id", roomID),
		zap.Int64("user_id", user.ID),
		zap.String("remote", r.RemoteAddr))
	s.hub.Add(roomID, conn)

	var snapshot map[string]any
	if err := s.store.View(roomID, func(room *Room) error {
		snapshot = roomPayload(room)
		return nil
	}); err == nil {
		s.hub.Send(conn, map[string]any{"type": eventRoomUpdate, "data": snapshot})
	}

	go s.readWS(roomID, conn)
}

// readWS drains client messages. Presence pings (player_joined /
// player_left / player_removed) trigger a room-state re-broadcast;
// everything else is ignored.
func (s *Server) readWS(roomID string, conn *websocket.Conn) {
	defer s.hub.Remove(roomID, conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Info("ws disconnected", zap.String("room_id", roomID), zap.Error(err))
			return
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "player_joined", "player_left", "player_removed":
			s.broadcastRoomState(roomID)
		}
	}
}

func (s *Server) broadcastRoomState(roomID string) {
	var payload map[string]any
	if err := s.store.View(roomID, func(room *Room) error {
		payload = roomPayload(room)
		return nil
	}); err != nil {
		return
	}
	s.broadcast(roomID, eventRoomUpdate, payload)
}
