package db

import (
	"time"

	"gorm.io/datatypes"
)

type Room struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	HostID    int64     `gorm:"index;not null"`
	Name      string    `gorm:"size:100;not null"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
	Players   []RoomPlayer
	Events    []Event
}

type RoomPlayer struct {
	ID        int64     `gorm:"primaryKey"`
	RoomID    string    `gorm:"type:uuid;index;not null;uniqueIndex:idx_room_players_room_user"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_room_players_room_user"`
	Username  string    `gorm:"size:64;not null"`
	GameName  string    `gorm:"size:64"`
	JoinedAt  time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type GameSession struct {
	ID                     int64          `gorm:"primaryKey"`
	RoomID                 string         `gorm:"type:uuid;uniqueIndex;not null"`
	Letter                 string         `gorm:"size:1"`
	IsRandomLetter         bool           `gorm:"not null;default:true"`
	SelectedCategories     datatypes.JSON `gorm:"type:jsonb;not null"`
	TotalRounds            int            `gorm:"not null;default:1"`
	CurrentRound           int            `gorm:"not null;default:1"`
	IsCompleted            bool           `gorm:"not null;default:false"`
	RoundLetters           datatypes.JSON `gorm:"type:jsonb;not null"`
	RoundAdvanceScheduled  bool           `gorm:"not null;default:false"`
	RoundTimerSeconds      int            `gorm:"not null;default:60"`
	ReduceTimerSeconds     int            `gorm:"not null;default:15"`
	RoundStartTime         *time.Time
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
	Answers                []PlayerAnswer
}

type PlayerAnswer struct {
	ID                int64          `gorm:"primaryKey"`
	GameSessionID     int64          `gorm:"index;not null;uniqueIndex:idx_answers_session_player_round"`
	RoomPlayerID      int64          `gorm:"not null;uniqueIndex:idx_answers_session_player_round"`
	RoundNumber       int            `gorm:"not null;uniqueIndex:idx_answers_session_player_round"`
	Answers           datatypes.JSON `gorm:"type:jsonb;not null"`
	Points            int            `gorm:"not null;default:0"`
	PointsPerCategory datatypes.JSON `gorm:"type:jsonb"`
	SubmittedAt       time.Time      `gorm:"not null"`
	CreatedAt         time.Time      `gorm:"not null"`
	UpdatedAt         time.Time      `gorm:"not null"`
}

type Event struct {
	ID        int64          `gorm:"primaryKey"`
	RoomID    string         `gorm:"type:uuid;index;not null"`
	UserID    *int64         `gorm:"index"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
