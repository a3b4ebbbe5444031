package server

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
	"unicode"
)

const defaultRoomName = "Panstwa Miasto Room"

const (
	minRoundTimerSeconds  = 10
	maxRoundTimerSeconds  = 600
	minReduceTimerSeconds = 5
	maxReduceTimerSeconds = 300
	maxRoomNameLength     = 100
)

const (
	eventRoomUpdate      = "room_update"
	eventPlayerRemoved   = "player_removed_notification"
	eventRoomDeleted     = "room_deleted_notification"
	eventGameStarted     = "game_started_notification"
	eventPlayerSubmitted = "player_submitted_notification"
	eventRoundAdvancing  = "round_advancing_notification"
)

type Room struct {
	ID        string
	Name      string
	HostID    int64
	IsActive  bool
	CreatedAt time.Time
	Players   []Player
	Session   *GameSession
}

type Player struct {
	ID       int64
	DBID     int64
	UserID   int64
	Username string
	GameName string
	JoinedAt time.Time
}

type GameSession struct {
	DBID                  int64
	Letter                string
	IsRandomLetter        bool
	SelectedCategories    []string
	TotalRounds           int
	CurrentRound          int
	IsCompleted           bool
	RoundLetters          []string
	RoundAdvanceScheduled bool
	RoundTimerSeconds     int
	ReduceTimerSeconds    int
	RoundStartTime        *time.Time
	Answers               []PlayerAnswer
}

type PlayerAnswer struct {
	DBID              int64
	PlayerID          int64
	RoundNumber       int
	Answers           map[string]string
	Points            int
	PointsPerCategory map[string]int
	SubmittedAt       time.Time
}

// Started reports whether a round letter has been drawn, i.e. the game
// is past configuration.
func (g *GameSession) Started() bool {
	return g != nil && g.Letter != "" && len(g.RoundLetters) > 0
}

func (g *GameSession) answerFor(playerID int64, round int) *PlayerAnswer {
	for i := range g.Answers {
		if g.Answers[i].PlayerID == playerID && g.Answers[i].RoundNumber == round {
			return &g.Answers[i]
		}
	}
	return nil
}

func (g *GameSession) roundAnswers(round int) []*PlayerAnswer {
	var out []*PlayerAnswer
	for i := range g.Answers {
		if g.Answers[i].RoundNumber == round {
			out = append(out, &g.Answers[i])
		}
	}
	return out
}

func (r *Room) findPlayerByUser(userID int64) *Player {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return &r.Players[i]
		}
	}
	return nil
}

func (r *Room) findPlayer(playerID int64) *Player {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return &r.Players[i]
		}
	}
	return nil
}

type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Fixed catalog of answer categories. Static reference data, never
// mutated at runtime.
var categoryCatalog = []Category{
	{Key: "country", Label: "Country"},
	{Key: "city", Label: "City"},
	{Key: "name", Label: "Name"},
	{Key: "animal", Label: "Animal"},
	{Key: "plant", Label: "Plant"},
	{Key: "thing", Label: "Thing"},
	{Key: "river", Label: "River"},
}

func validCategoryKey(key string) bool {
	for _, c := range categoryCatalog {
		if c.Key == key {
			return true
		}
	}
	return false
}

func categoryLabel(key string) string {
	for _, c := range categoryCatalog {
		if c.Key == key {
			return c.Label
		}
	}
	return key
}

// Letters rejected when the host sets a letter manually. Q, V and X
// are not commonly used in Polish.
const manualLetterExclusions = "QVX"

// Letters never drawn randomly. Note this set differs from the manual
// one; both are pinned by tests.
const randomLetterExclusions = "QXY"

// validManualLetter accepts any single alphabetic rune (Polish
// letters included) outside the exclusion set.
func validManualLetter(letter string) bool {
	runes := []rune(letter)
	if len(runes) != 1 || !unicode.IsLetter(runes[0]) {
		return false
	}
	return !strings.ContainsRune(manualLetterExclusions, unicode.ToUpper(runes[0]))
}

func randomLetter() string {
	pool := make([]byte, 0, 26)
	for ch := byte('A'); ch <= 'Z'; ch++ {
		if strings.ContainsRune(randomLetterExclusions, rune(ch)) {
			continue
		}
		pool = append(pool, ch)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
	if err != nil {
		return "A"
	}
	return string(pool[n.Int64()])
}

func timeNowUTC() time.Time {
	return time.Now().UTC()
}
