package server

import (
	"testing"
	"time"

	"panstwa-miasta/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestRestoreSessionMapping(t *testing.T) {
	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	row := &db.GameSession{
		ID:                    7,
		Letter:                "B",
		IsRandomLetter:        true,
		SelectedCategories:    datatypes.JSON(`["country","city"]`),
		TotalRounds:           3,
		CurrentRound:          2,
		RoundLetters:          datatypes.JSON(`["A","B"]`),
		RoundAdvanceScheduled: true,
		RoundTimerSeconds:     60,
		ReduceTimerSeconds:    15,
		RoundStartTime:        &started,
	}

	session, err := restoreSession(row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), session.DBID)
	assert.Equal(t, "B", session.Letter)
	assert.Equal(t, []string{"country", "city"}, session.SelectedCategories)
	assert.Equal(t, []string{"A", "B"}, session.RoundLetters)
	assert.Equal(t, 2, session.CurrentRound)
	assert.Equal(t, &started, session.RoundStartTime)
	// A pending advance never survives a restart, whatever the row
	// says.
	assert.False(t, session.RoundAdvanceScheduled)
}

func TestRestoreSessionEmptyColumns(t *testing.T) {
	session, err := restoreSession(&db.GameSession{TotalRounds: 1, CurrentRound: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{}, session.SelectedCategories)
	assert.Nil(t, session.RoundLetters)
	assert.False(t, session.Started())
}

func TestRestoreSessionBadJSON(t *testing.T) {
	_, err := restoreSession(&db.GameSession{
		SelectedCategories: datatypes.JSON(`{broken`),
	})
	assert.Error(t, err)
}

func TestRestoreAnswerMapping(t *testing.T) {
	submitted := time.Date(2025, 3, 1, 12, 1, 0, 0, time.UTC)
	row := &db.PlayerAnswer{
		ID:                11,
		RoomPlayerID:      5,
		RoundNumber:       2,
		Answers:           datatypes.JSON(`{"country":"Austria"}`),
		Points:            15,
		PointsPerCategory: datatypes.JSON(`{"country":15}`),
		SubmittedAt:       submitted,
	}

	answer, err := restoreAnswer(row, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(11), answer.DBID)
	assert.Equal(t, int64(42), answer.PlayerID)
	assert.Equal(t, 2, answer.RoundNumber)
	assert.Equal(t, map[string]string{"country": "Austria"}, answer.Answers)
	assert.Equal(t, 15, answer.Points)
	assert.Equal(t, map[string]int{"country": 15}, answer.PointsPerCategory)
}

func TestRestorePlayerMapping(t *testing.T) {
	joined := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	row := &db.RoomPlayer{
		ID:       3,
		UserID:   9,
		Username: "ada",
		GameName: "Ada",
		JoinedAt: joined,
	}

	player := restorePlayer(row, 21)
	assert.Equal(t, int64(21), player.ID)
	assert.Equal(t, int64(3), player.DBID)
	assert.Equal(t, int64(9), player.UserID)
	assert.Equal(t, "ada", player.Username)
	assert.Equal(t, joined, player.JoinedAt)
}

func TestRestoreActiveRoomsNilDB(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.RestoreActiveRooms())
}
