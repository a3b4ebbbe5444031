package server

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestUpdateConfigValidation(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	cases := []struct {
		name string
		req  UpdateSessionRequest
	}{
		{"letter Q rejected", UpdateSessionRequest{Letter: strPtr("Q")}},
		{"letter V rejected", UpdateSessionRequest{Letter: strPtr("V")}},
		{"letter X rejected", UpdateSessionRequest{Letter: strPtr("X")}},
		{"multi-char letter", UpdateSessionRequest{Letter: strPtr("AB")}},
		{"digit letter", UpdateSessionRequest{Letter: strPtr("7")}},
		{"empty categories", UpdateSessionRequest{SelectedCategories: []string{}}},
		{"unknown category", UpdateSessionRequest{SelectedCategories: []string{"spaceship"}}},
		{"zero rounds", UpdateSessionRequest{TotalRounds: intPtr(0)}},
		{"timer too short", UpdateSessionRequest{RoundTimerSeconds: intPtr(9)}},
		{"timer too long", UpdateSessionRequest{RoundTimerSeconds: intPtr(601)}},
		{"reduce too short", UpdateSessionRequest{ReduceTimerSeconds: intPtr(4)}},
		{"reduce too long", UpdateSessionRequest{ReduceTimerSeconds: intPtr(301)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ts.UpdateConfig(hostUser, roomID, tc.req)
			require.Error(t, err)
			assert.True(t, isKind(err, kindValidation), "expected validation error, got %v", err)
		})
	}
}

func TestUpdateConfigManualLetterUnicode(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	// Any alphabetic letter is allowed, including Polish ones.
	_, err := ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{Letter: strPtr("ł")})
	require.NoError(t, err)
	assert.Equal(t, "Ł", ts.session(t, roomID).Letter)

	_, err = ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{Letter: strPtr("ż")})
	require.NoError(t, err)
	assert.Equal(t, "Ż", ts.session(t, roomID).Letter)
}

func TestUpdateConfigManualLetterY(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	// Y is only excluded from random draws, not from manual letters.
	_, err := ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{Letter: strPtr("y")})
	require.NoError(t, err)
	assert.Equal(t, "Y", ts.session(t, roomID).Letter)
}

func TestUpdateConfigNonHostForbidden(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)

	_, err := ts.UpdateConfig(guestUser, roomID, UpdateSessionRequest{Letter: strPtr("A")})
	assert.True(t, isKind(err, kindForbidden))
}

func TestUpdateConfigAllowedMidRound(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)
	ts.startGame(t, roomID, "A", 1, "country")

	// Permissive on purpose: the host may edit rules mid-round.
	_, err := ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{
		SelectedCategories: []string{"city", "animal"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "animal"}, ts.session(t, roomID).SelectedCategories)
}

func TestStartSessionRequiresCategories(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	_, err := ts.StartSession(hostUser, roomID)
	require.Error(t, err)
	assert.True(t, isKind(err, kindValidation))
	assert.Contains(t, err.Error(), "configure categories first")
}

func TestStartSessionRequiresLetterOrRandom(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	_, err := ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{
		IsRandomLetter:     boolPtr(false),
		SelectedCategories: []string{"country"},
		TotalRounds:        intPtr(1),
	})
	require.NoError(t, err)

	_, err = ts.StartSession(hostUser, roomID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set a letter or enable random")
}

func TestStartSessionManualLetter(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)
	ts.startGame(t, roomID, "B", 1, "country", "city")

	session := ts.session(t, roomID)
	assert.Equal(t, "B", session.Letter)
	assert.False(t, session.IsRandomLetter)
	assert.Equal(t, []string{"B"}, session.RoundLetters)
	assert.Equal(t, 1, session.CurrentRound)
	assert.False(t, session.IsCompleted)
	require.NotNil(t, session.RoundStartTime)
	assert.Equal(t, ts.clock.Now(), *session.RoundStartTime)
}

func TestStartSessionMultiRoundForcesRandom(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	_, err := ts.UpdateConfig(hostUser, roomID, UpdateSessionRequest{
		Letter:             strPtr("B"),
		IsRandomLetter:     boolPtr(false),
		SelectedCategories: []string{"country"},
		TotalRounds:        intPtr(3),
	})
	require.NoError(t, err)
	_, err = ts.StartSession(hostUser, roomID)
	require.NoError(t, err)

	session := ts.session(t, roomID)
	assert.True(t, session.IsRandomLetter)
	assert.Len(t, session.RoundLetters, 1)
}

func TestRandomLetterExclusions(t *testing.T) {
	// The random pool excludes Q, X and Y; the manual validation
	// excludes Q, V and X. Both sets are pinned deliberately.
	seen := make(map[string]bool)
	for i := 0; i < 2000; i++ {
		letter := randomLetter()
		require.Len(t, letter, 1)
		assert.NotContains(t, []string{"Q", "X", "Y"}, letter)
		seen[letter] = true
	}
	// Every one of the 23 pool letters is reachable.
	assert.Len(t, seen, 23)
	assert.True(t, validManualLetter("Y"))
	assert.False(t, validManualLetter("V"))
	assert.False(t, validManualLetter("Q"))
	assert.False(t, validManualLetter("X"))
	assert.True(t, strings.Contains(manualLetterExclusions, "V"))
	assert.True(t, strings.Contains(randomLetterExclusions, "Y"))
}

func TestSubmitAnswerBeforeStart(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	assert.True(t, isKind(err, kindConflict))
}

func TestSubmitAnswerNonMemberForbidden(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)
	ts.startGame(t, roomID, "A", 1, "country")

	_, err := ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": "Austria"})
	assert.True(t, isKind(err, kindForbidden))
}

func TestSubmitAnswerFiltersAndTrims(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)
	ts.startGame(t, roomID, "A", 1, "country", "city")

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{
		"country":   "  Austria  ",
		"spaceship": "Apollo",
	})
	require.NoError(t, err)

	session := ts.session(t, roomID)
	require.Len(t, session.Answers, 1)
	assert.Equal(t, map[string]string{"country": "Austria", "city": ""}, session.Answers[0].Answers)
}

func TestPointsStayZeroUntilLastSubmit(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser, thirdUser)
	ts.startGame(t, roomID, "A", 1, "country")

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": "Albania"})
	require.NoError(t, err)

	for _, answer := range ts.session(t, roomID).Answers {
		assert.Equal(t, 0, answer.Points)
		assert.Nil(t, answer.PointsPerCategory)
	}
	assert.Equal(t, 0, ts.sched.armCount)

	_, err = ts.SubmitAnswer(thirdUser, roomID, map[string]string{"country": "Argentina"})
	require.NoError(t, err)

	session := ts.session(t, roomID)
	total := 0
	for _, answer := range session.Answers {
		total += answer.Points
	}
	assert.Equal(t, 3*uniqueAnswerPoints, total)
	assert.True(t, session.RoundAdvanceScheduled)
	assert.Equal(t, 1, ts.sched.armCount)
}

func TestAdvanceDelayShortenedOnCompletion(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "A", 1, "country")

	// 10s into a 60s round with a 15s reduce window: plenty of time
	// remains, so the delay is cut down to the reduce value.
	ts.clock.Advance(10 * time.Second)
	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": "Albania"})
	require.NoError(t, err)

	delay, ok := ts.sched.armedDelay(roomID)
	require.True(t, ok)
	assert.Equal(t, 15*time.Second, delay)
}

func TestAdvanceDelayUsesRemainingWhenShorter(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "A", 1, "country")

	// 55s into a 60s round only 5s remain, less than the 15s reduce
	// window; the shorter remaining time wins.
	ts.clock.Advance(55 * time.Second)
	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": "Albania"})
	require.NoError(t, err)

	delay, ok := ts.sched.armedDelay(roomID)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, delay)
}

func TestAdvanceRoundRequiresAllSubmitted(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "", 3, "country")

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)

	_, err = ts.AdvanceRound(hostUser, roomID)
	require.Error(t, err)
	assert.True(t, isKind(err, kindConflict))
	assert.Contains(t, err.Error(), "not all players have submitted")
}

func TestAdvanceRoundProgressesAndCompletes(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "", 2, "country")

	submitBoth := func() {
		letter := ts.session(t, roomID).Letter
		_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": letter + "xland"})
		require.NoError(t, err)
		_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": letter + "ystan"})
		require.NoError(t, err)
	}

	submitBoth()
	_, err := ts.AdvanceRound(hostUser, roomID)
	require.NoError(t, err)

	session := ts.session(t, roomID)
	assert.Equal(t, 2, session.CurrentRound)
	assert.False(t, session.IsCompleted)
	assert.Len(t, session.RoundLetters, 2)
	assert.False(t, session.RoundAdvanceScheduled)

	submitBoth()
	_, err = ts.AdvanceRound(hostUser, roomID)
	require.NoError(t, err)

	session = ts.session(t, roomID)
	assert.True(t, session.IsCompleted)
	assert.Equal(t, 2, session.CurrentRound)

	_, err = ts.AdvanceRound(hostUser, roomID)
	require.Error(t, err)
	assert.True(t, isKind(err, kindConflict))
	assert.Contains(t, err.Error(), "already completed")
}

func TestAdvanceRoundNonHostForbidden(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "A", 1, "country")

	_, err := ts.AdvanceRound(guestUser, roomID)
	assert.True(t, isKind(err, kindForbidden))
}

func TestAutoAdvanceFiresSameTransition(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "", 2, "country")

	letter := ts.session(t, roomID).Letter
	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": letter + "a"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": letter + "b"})
	require.NoError(t, err)

	require.True(t, ts.sched.fire(roomID))

	session := ts.session(t, roomID)
	assert.Equal(t, 2, session.CurrentRound)
	assert.False(t, session.RoundAdvanceScheduled)
	assert.Len(t, session.RoundLetters, 2)
}

func TestAutoAdvanceAbortsWhenRoundReopened(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "A", 1, "country")

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": "Albania"})
	require.NoError(t, err)
	require.True(t, ts.session(t, roomID).RoundAdvanceScheduled)

	// A join after the round completed reopens it; the pending fire
	// must notice and abort, clearing the scheduled flag.
	_, err = ts.JoinRoom(thirdUser, roomID)
	require.NoError(t, err)

	require.True(t, ts.sched.fire(roomID))

	session := ts.session(t, roomID)
	assert.False(t, session.IsCompleted)
	assert.Equal(t, 1, session.CurrentRound)
	assert.False(t, session.RoundAdvanceScheduled)
}

func TestAutoAdvanceAfterManualAdvanceIsNoop(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "", 3, "country")

	letter := ts.session(t, roomID).Letter
	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": letter + "a"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": letter + "b"})
	require.NoError(t, err)

	// Host advances first; the fake scheduler still holds the stale
	// callback, simulating a timer that fired after cancellation lost
	// the race.
	pendingFire := ts.sched.pending[roomID]
	require.NotNil(t, pendingFire)
	_, err = ts.AdvanceRound(hostUser, roomID)
	require.NoError(t, err)
	require.Equal(t, 2, ts.session(t, roomID).CurrentRound)

	pendingFire()

	assert.Equal(t, 2, ts.session(t, roomID).CurrentRound)
}

// blockingCancelScheduler holds every Cancel until released, exposing
// the window between a round transition and its timer cancellation.
type blockingCancelScheduler struct {
	inner   *fakeScheduler
	entered chan struct{}
	release chan struct{}
}

func (b *blockingCancelScheduler) Arm(roomID string, delay time.Duration, fire func()) {
	b.inner.Arm(roomID, delay, fire)
}

func (b *blockingCancelScheduler) Cancel(roomID string) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	b.inner.Cancel(roomID)
}

func TestAdvanceCancelsTimerBeforeReleasingRoom(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t, guestUser)
	ts.startGame(t, roomID, "", 2, "country")

	letter := ts.session(t, roomID).Letter
	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": letter + "a"})
	require.NoError(t, err)
	_, err = ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": letter + "b"})
	require.NoError(t, err)

	gate := &blockingCancelScheduler{
		inner:   ts.sched,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	ts.Server.sched = gate

	advanceDone := make(chan error, 1)
	go func() {
		_, err := ts.AdvanceRound(hostUser, roomID)
		advanceDone <- err
	}()
	<-gate.entered

	// Submissions for the next round racing the advance. The stale
	// cancel must not be able to kill the timer they arm.
	submitsDone := make(chan struct{})
	go func() {
		defer close(submitsDone)
		next := ts.session(t, roomID).Letter
		if _, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": next + "a"}); err != nil {
			t.Errorf("submit host: %v", err)
		}
		if _, err := ts.SubmitAnswer(guestUser, roomID, map[string]string{"country": next + "b"}); err != nil {
			t.Errorf("submit guest: %v", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	require.NoError(t, <-advanceDone)
	<-submitsDone

	session := ts.session(t, roomID)
	require.Equal(t, 2, session.CurrentRound)
	require.True(t, session.RoundAdvanceScheduled)
	assert.Equal(t, 1, ts.sched.pendingCount())
	require.True(t, ts.sched.fire(roomID))
	assert.True(t, ts.session(t, roomID).IsCompleted)
}

func TestStartSessionResetsPreviousGame(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)
	ts.startGame(t, roomID, "A", 1, "country")

	_, err := ts.SubmitAnswer(hostUser, roomID, map[string]string{"country": "Austria"})
	require.NoError(t, err)
	_, err = ts.AdvanceRound(hostUser, roomID)
	require.NoError(t, err)
	require.True(t, ts.session(t, roomID).IsCompleted)

	_, err = ts.StartSession(hostUser, roomID)
	require.NoError(t, err)

	session := ts.session(t, roomID)
	assert.False(t, session.IsCompleted)
	assert.Equal(t, 1, session.CurrentRound)
	assert.Len(t, session.RoundLetters, 1)
	assert.Empty(t, session.Answers)
}

func TestGetSessionRequiresMembership(t *testing.T) {
	ts := newTestServer(t)
	roomID := ts.createRoomWith(t)

	_, err := ts.GetSession(guestUser, roomID)
	assert.True(t, isKind(err, kindForbidden))

	payload, err := ts.GetSession(hostUser, roomID)
	require.NoError(t, err)
	assert.Equal(t, true, payload["is_random_letter"])
	assert.Nil(t, payload["final_letter"])
}
