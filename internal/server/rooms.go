package server

import (
	"sort"
	"strings"
	"time"

	"panstwa-miasta/internal/identity"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRoom creates a room with the caller as host, adds the host as
// the first player and attaches the default game session (random
// letter, no categories selected yet).
func (s *Server) CreateRoom(user identity.User, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultRoomName
	}
	if len(name) > maxRoomNameLength {
		return nil, errValidation("name", "room name must be %d characters or fewer", maxRoomNameLength)
	}

	now := s.now()
	room := &Room{
		ID:        uuid.NewString(),
		Name:      name,
		HostID:    user.ID,
		IsActive:  true,
		CreatedAt: now,
		Players: []Player{{
			ID:       s.store.NextPlayerID(),
			UserID:   user.ID,
			Username: user.Username,
			GameName: user.GameName,
			JoinedAt: now,
		}},
		Session: &GameSession{
			IsRandomLetter:     true,
			SelectedCategories: []string{},
			TotalRounds:        1,
			CurrentRound:       1,
			RoundTimerSeconds:  s.cfg.RoundTimerSeconds,
			ReduceTimerSeconds: s.cfg.ReduceTimerSeconds,
		},
	}
	s.store.Add(room)

	var payload map[string]any
	_ = s.store.View(room.ID, func(room *Room) error {
		s.persistRoomTree(room)
		payload = roomPayload(room)
		return nil
	})
	s.persistEvent(room.ID, "room_created", map[string]any{"host_id": user.ID, "name": name})
	s.log.Info("room created", zap.String("room_id", room.ID), zap.Int64("host_id", user.ID))
	s.broadcast(room.ID, eventRoomUpdate, payload)
	return payload, nil
}

// JoinRoom adds the caller to an active room.
func (s *Server) JoinRoom(user identity.User, roomID string) (map[string]any, error) {
	var payload map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.findPlayerByUser(user.ID) != nil {
			return errConflict("you are already in this room")
		}
		player := Player{
			ID:       s.store.NextPlayerID(),
			UserID:   user.ID,
			Username: user.Username,
			GameName: user.GameName,
			JoinedAt: s.now(),
		}
		room.Players = append(room.Players, player)
		s.persistPlayer(room, &room.Players[len(room.Players)-1])
		payload = roomPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("player joined", zap.String("room_id", roomID), zap.Int64("user_id", user.ID))
	s.broadcast(roomID, eventRoomUpdate, payload)
	return payload, nil
}

// LeaveRoom removes the caller's membership. The host cannot leave;
// they delete the room instead.
func (s *Server) LeaveRoom(user identity.User, roomID string) error {
	var payload map[string]any
	var roundComplete bool
	var countdown int
	err := s.store.Update(roomID, func(room *Room) error {
		player := room.findPlayerByUser(user.ID)
		if player == nil {
			return errNotFound("you are not a member of this room")
		}
		if room.HostID == user.ID {
			return errConflict("host cannot leave the room, delete the room instead")
		}
		s.removeMember(room, player.ID)
		// The leaver may have been the last holdout of the current
		// round; settle it like a completing submit.
		roundComplete, countdown = s.settleRound(room)
		payload = roomPayload(room)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("player left", zap.String("room_id", roomID), zap.Int64("user_id", user.ID))
	s.broadcast(roomID, eventRoomUpdate, payload)
	if roundComplete && countdown > 0 {
		s.broadcast(roomID, eventRoundAdvancing, map[string]any{
			"countdown_seconds": countdown,
		})
	}
	return nil
}

// RemovePlayer lets the host kick a player. The host cannot be
// removed.
func (s *Server) RemovePlayer(user identity.User, roomID string, playerID int64) error {
	var payload map[string]any
	var removed Player
	var roundComplete bool
	var countdown int
	err := s.store.Update(roomID, func(room *Room) error {
		if room.HostID != user.ID {
			return errForbidden("only the host can remove players")
		}
		player := room.findPlayer(playerID)
		if player == nil {
			return errNotFound("player not found")
		}
		if player.UserID == room.HostID {
			return errConflict("cannot remove the host")
		}
		removed = *player
		s.removeMember(room, player.ID)
		roundComplete, countdown = s.settleRound(room)
		payload = roomPayload(room)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("player removed",
		zap.String("room_id", roomID),
		zap.Int64("player_id", playerID),
		zap.Int64("by_user_id", user.ID))
	s.broadcast(roomID, eventPlayerRemoved, map[string]any{
		"player_id": removed.ID,
		"user_id":   removed.UserID,
		"username":  removed.Username,
	})
	s.broadcast(roomID, eventRoomUpdate, payload)
	if roundComplete && countdown > 0 {
		s.broadcast(roomID, eventRoundAdvancing, map[string]any{
			"countdown_seconds": countdown,
		})
	}
	return nil
}

// DeleteRoom soft-deletes a room: players and session go away, the
// room row stays for audit with is_active=false. Subscribers get a
// deletion notice and are then torn down, so no room-state broadcast
// follows.
func (s *Server) DeleteRoom(user identity.User, roomID string) error {
	err := s.store.Update(roomID, func(room *Room) error {
		if room.HostID != user.ID {
			return errForbidden("only the host can delete the room")
		}
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		for i := range room.Players {
			s.deletePlayerRow(&room.Players[i])
		}
		room.Players = nil
		s.deleteSessionRows(room)
		room.Session = nil
		room.IsActive = false
		s.sched.Cancel(room.ID)
		s.persistRoom(room)
		return nil
	})
	if err != nil {
		return err
	}
	s.persistEvent(roomID, "room_deleted", map[string]any{"user_id": user.ID})
	s.log.Info("room deleted", zap.String("room_id", roomID), zap.Int64("host_id", user.ID))
	s.broadcast(roomID, eventRoomDeleted, map[string]any{"room_id": roomID})
	s.hub.CloseRoom(roomID)
	return nil
}

// ListRooms returns every active room, newest first. Open to any
// authenticated user so the lobby can be browsed before joining.
func (s *Server) ListRooms(user identity.User) []map[string]any {
	type listed struct {
		createdAt time.Time
		payload   map[string]any
	}
	var rooms []listed
	for _, id := range s.store.RoomIDs() {
		_ = s.store.View(id, func(room *Room) error {
			if room.IsActive {
				rooms = append(rooms, listed{createdAt: room.CreatedAt, payload: roomPayload(room)})
			}
			return nil
		})
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].createdAt.After(rooms[j].createdAt)
	})
	out := make([]map[string]any, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.payload)
	}
	return out
}

// RoomDetail returns the full room snapshot to a member.
func (s *Server) RoomDetail(user identity.User, roomID string) (map[string]any, error) {
	var payload map[string]any
	err := s.store.View(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.findPlayerByUser(user.ID) == nil {
			return errForbidden("you are not a member of this room")
		}
		payload = roomPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// removeMember drops the membership and, per cascade semantics, the
// player's answers. Must run under the room lock.
func (s *Server) removeMember(room *Room, playerID int64) {
	for i := range room.Players {
		if room.Players[i].ID == playerID {
			s.deletePlayerRow(&room.Players[i])
			room.Players = append(room.Players[:i], room.Players[i+1:]...)
			break
		}
	}
	if room.Session == nil {
		return
	}
	kept := room.Session.Answers[:0]
	for _, answer := range room.Session.Answers {
		if answer.PlayerID == playerID {
			s.deleteAnswerRow(&answer)
			continue
		}
		kept = append(kept, answer)
	}
	room.Session.Answers = kept
}
