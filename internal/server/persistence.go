package server

import (
	"encoding/json"

	"panstwa-miasta/internal/db"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// Write-through persistence. The in-memory store stays authoritative;
// every helper is a no-op on a nil connection so the engine runs (and
// tests run) without Postgres. Persistence failures are logged, not
// surfaced: a lost row is recovered on the next write of the same
// entity.

func (s *Server) persistRoom(room *Room) {
	if s.db == nil {
		return
	}
	record := db.Room{
		ID:        room.ID,
		HostID:    room.HostID,
		Name:      room.Name,
		IsActive:  room.IsActive,
		CreatedAt: room.CreatedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"host_id", "name", "is_active"}),
	}).Create(&record).Error
	if err != nil {
		s.log.Warn("persist room failed", zap.String("room_id", room.ID), zap.Error(err))
	}
}

// persistRoomTree writes the room with its players and session in one
// pass, used at creation time.
func (s *Server) persistRoomTree(room *Room) {
	if s.db == nil {
		return
	}
	s.persistRoom(room)
	for i := range room.Players {
		s.persistPlayer(room, &room.Players[i])
	}
	s.persistSession(room)
}

func (s *Server) persistPlayer(room *Room, player *Player) {
	if s.db == nil {
		return
	}
	record := db.RoomPlayer{
		ID:       player.DBID,
		RoomID:   room.ID,
		UserID:   player.UserID,
		Username: player.Username,
		GameName: player.GameName,
		JoinedAt: player.JoinedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "game_name"}),
	}).Create(&record).Error
	if err != nil {
		s.log.Warn("persist player failed",
			zap.String("room_id", room.ID),
			zap.Int64("user_id", player.UserID),
			zap.Error(err))
		return
	}
	player.DBID = record.ID
}

func (s *Server) deletePlayerRow(player *Player) {
	if s.db == nil || player.DBID == 0 {
		return
	}
	if err := s.db.Delete(&db.RoomPlayer{}, player.DBID).Error; err != nil {
		s.log.Warn("delete player failed", zap.Int64("player_db_id", player.DBID), zap.Error(err))
	}
}

func (s *Server) persistSession(room *Room) {
	if s.db == nil || room.Session == nil {
		return
	}
	session := room.Session
	record := db.GameSession{
		ID:                    session.DBID,
		RoomID:                room.ID,
		Letter:                session.Letter,
		IsRandomLetter:        session.IsRandomLetter,
		SelectedCategories:    mustJSON(session.SelectedCategories),
		TotalRounds:           session.TotalRounds,
		CurrentRound:          session.CurrentRound,
		IsCompleted:           session.IsCompleted,
		RoundLetters:          mustJSON(session.RoundLetters),
		RoundAdvanceScheduled: session.RoundAdvanceScheduled,
		RoundTimerSeconds:     session.RoundTimerSeconds,
		ReduceTimerSeconds:    session.ReduceTimerSeconds,
		RoundStartTime:        session.RoundStartTime,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"letter", "is_random_letter", "selected_categories",
			"total_rounds", "current_round", "is_completed",
			"round_letters", "round_advance_scheduled",
			"round_timer_seconds", "reduce_timer_seconds", "round_start_time",
		}),
	}).Create(&record).Error
	if err != nil {
		s.log.Warn("persist session failed", zap.String("room_id", room.ID), zap.Error(err))
		return
	}
	session.DBID = record.ID
}

func (s *Server) deleteSessionRows(room *Room) {
	if s.db == nil || room.Session == nil || room.Session.DBID == 0 {
		return
	}
	sessionID := room.Session.DBID
	if err := s.db.Where("game_session_id = ?", sessionID).Delete(&db.PlayerAnswer{}).Error; err != nil {
		s.log.Warn("delete answers failed", zap.Int64("session_id", sessionID), zap.Error(err))
	}
	if err := s.db.Delete(&db.GameSession{}, sessionID).Error; err != nil {
		s.log.Warn("delete session failed", zap.Int64("session_id", sessionID), zap.Error(err))
	}
}

func (s *Server) persistAnswer(room *Room, answer *PlayerAnswer) {
	if s.db == nil || room.Session == nil || room.Session.DBID == 0 {
		return
	}
	player := room.findPlayer(answer.PlayerID)
	if player == nil || player.DBID == 0 {
		return
	}
	record := db.PlayerAnswer{
		ID:                answer.DBID,
		GameSessionID:     room.Session.DBID,
		RoomPlayerID:      player.DBID,
		RoundNumber:       answer.RoundNumber,
		Answers:           mustJSON(answer.Answers),
		Points:            answer.Points,
		PointsPerCategory: mustJSON(answer.PointsPerCategory),
		SubmittedAt:       answer.SubmittedAt,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_session_id"}, {Name: "room_player_id"}, {Name: "round_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"answers", "points", "points_per_category", "submitted_at"}),
	}).Create(&record).Error
	if err != nil {
		s.log.Warn("persist answer failed",
			zap.String("room_id", room.ID),
			zap.Int64("player_id", answer.PlayerID),
			zap.Error(err))
		return
	}
	answer.DBID = record.ID
}

func (s *Server) deleteAnswerRow(answer *PlayerAnswer) {
	if s.db == nil || answer.DBID == 0 {
		return
	}
	if err := s.db.Delete(&db.PlayerAnswer{}, answer.DBID).Error; err != nil {
		s.log.Warn("delete answer failed", zap.Int64("answer_db_id", answer.DBID), zap.Error(err))
	}
}

func (s *Server) persistEvent(roomID, eventType string, payload map[string]any) {
	if s.db == nil {
		return
	}
	record := db.Event{
		RoomID:  roomID,
		Type:    eventType,
		Payload: mustJSON(payload),
	}
	if err := s.db.Create(&record).Error; err != nil {
		s.log.Warn("persist event failed",
			zap.String("room_id", roomID),
			zap.String("event", eventType),
			zap.Error(err))
	}
}

func mustJSON(value any) datatypes.JSON {
	if value == nil {
		return datatypes.JSON([]byte("null"))
	}
	data, err := json.Marshal(value)
	if err != nil {
		return datatypes.JSON([]byte("null"))
	}
	return datatypes.JSON(data)
}
