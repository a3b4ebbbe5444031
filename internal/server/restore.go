package server

import (
	"encoding/json"

	"panstwa-miasta/internal/db"

	"go.uber.org/zap"
)

// RestoreActiveRooms reloads active rooms from Postgres into the
// in-memory store at boot, so a restart keeps lobbies and running
// games alive. Pending auto-advance timers are not restored; the host
// can always advance manually.
func (s *Server) RestoreActiveRooms() error {
	if s.db == nil {
		return nil
	}
	var rooms []db.Room
	if err := s.db.Where("is_active = ?", true).Find(&rooms).Error; err != nil {
		return err
	}
	restored := 0
	for i := range rooms {
		room, err := s.restoreRoom(&rooms[i])
		if err != nil {
			s.log.Warn("restore room failed", zap.String("room_id", rooms[i].ID), zap.Error(err))
			continue
		}
		if s.store.Contains(room.ID) {
			continue
		}
		s.store.Add(room)
		restored++
	}
	if restored > 0 {
		s.log.Info("rooms restored", zap.Int("count", restored))
	}
	return nil
}

func (s *Server) restoreRoom(record *db.Room) (*Room, error) {
	var playerRows []db.RoomPlayer
	if err := s.db.Where("room_id = ?", record.ID).Order("joined_at").Find(&playerRows).Error; err != nil {
		return nil, err
	}
	room := &Room{
		ID:        record.ID,
		Name:      record.Name,
		HostID:    record.HostID,
		IsActive:  record.IsActive,
		CreatedAt: record.CreatedAt,
	}
	dbIDToPlayerID := make(map[int64]int64, len(playerRows))
	for i := range playerRows {
		player := restorePlayer(&playerRows[i], s.store.NextPlayerID())
		dbIDToPlayerID[player.DBID] = player.ID
		room.Players = append(room.Players, player)
	}

	var sessionRow db.GameSession
	err := s.db.Where("room_id = ?", record.ID).First(&sessionRow).Error
	if err != nil {
		// A room without a session row predates lazy creation; the
		// default session is rebuilt on first access.
		return room, nil
	}
	session, err := restoreSession(&sessionRow)
	if err != nil {
		return nil, err
	}
	var answerRows []db.PlayerAnswer
	if err := s.db.Where("game_session_id = ?", sessionRow.ID).Order("submitted_at").Find(&answerRows).Error; err != nil {
		return nil, err
	}
	for i := range answerRows {
		playerID, ok := dbIDToPlayerID[answerRows[i].RoomPlayerID]
		if !ok {
			continue
		}
		answer, err := restoreAnswer(&answerRows[i], playerID)
		if err != nil {
			return nil, err
		}
		session.Answers = append(session.Answers, answer)
	}
	room.Session = session
	return room, nil
}

func restorePlayer(row *db.RoomPlayer, id int64) Player {
	return Player{
		ID:       id,
		DBID:     row.ID,
		UserID:   row.UserID,
		Username: row.Username,
		GameName: row.GameName,
		JoinedAt: row.JoinedAt,
	}
}

func restoreSession(row *db.GameSession) (*GameSession, error) {
	var categories []string
	if err := unmarshalJSON(row.SelectedCategories, &categories); err != nil {
		return nil, err
	}
	var letters []string
	if err := unmarshalJSON(row.RoundLetters, &letters); err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []string{}
	}
	return &GameSession{
		DBID:               row.ID,
		Letter:             row.Letter,
		IsRandomLetter:     row.IsRandomLetter,
		SelectedCategories: categories,
		TotalRounds:        row.TotalRounds,
		CurrentRound:       row.CurrentRound,
		IsCompleted:        row.IsCompleted,
		RoundLetters:       letters,
		// A scheduled advance does not survive a restart.
		RoundAdvanceScheduled: false,
		RoundTimerSeconds:     row.RoundTimerSeconds,
		ReduceTimerSeconds:    row.ReduceTimerSeconds,
		RoundStartTime:        row.RoundStartTime,
	}, nil
}

func restoreAnswer(row *db.PlayerAnswer, playerID int64) (PlayerAnswer, error) {
	var answers map[string]string
	if err := unmarshalJSON(row.Answers, &answers); err != nil {
		return PlayerAnswer{}, err
	}
	var perCategory map[string]int
	if err := unmarshalJSON(row.PointsPerCategory, &perCategory); err != nil {
		return PlayerAnswer{}, err
	}
	return PlayerAnswer{
		DBID:              row.ID,
		PlayerID:          playerID,
		RoundNumber:       row.RoundNumber,
		Answers:           answers,
		Points:            row.Points,
		PointsPerCategory: perCategory,
		SubmittedAt:       row.SubmittedAt,
	}, nil
}

func unmarshalJSON(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}
