package server

import (
	"strings"
	"time"

	"panstwa-miasta/internal/identity"

	"go.uber.org/zap"
)

// UpdateSessionRequest carries partial config edits. Nil fields are
// left untouched.
type UpdateSessionRequest struct {
	Letter             *string  `json:"letter"`
	IsRandomLetter     *bool    `json:"is_random_letter"`
	SelectedCategories []string `json:"selected_categories"`
	TotalRounds        *int     `json:"total_rounds"`
	RoundTimerSeconds  *int     `json:"round_timer_seconds"`
	ReduceTimerSeconds *int     `json:"reduce_timer_on_complete_seconds"`
}

// GetSession returns the session payload, creating the default session
// lazily if the room predates it.
func (s *Server) GetSession(user identity.User, roomID string) (map[string]any, error) {
	var payload map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.findPlayerByUser(user.ID) == nil {
			return errForbidden("you are not a member of this room")
		}
		s.ensureSession(room)
		payload = sessionPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// UpdateConfig applies host edits to the game rules. Deliberately
// permissive about timing: the host may edit between rounds or even
// mid-round, matching observed behavior.
func (s *Server) UpdateConfig(user identity.User, roomID string, req UpdateSessionRequest) (map[string]any, error) {
	var sessionData, roomData map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.HostID != user.ID {
			return errForbidden("only the host can update game rules")
		}
		session := s.ensureSession(room)

		if req.Letter != nil {
			letter := strings.ToUpper(strings.TrimSpace(*req.Letter))
			if letter != "" && !validManualLetter(letter) {
				return errValidation("letter", "letter must be a single letter other than Q, V or X")
			}
			session.Letter = letter
		}
		if req.IsRandomLetter != nil {
			session.IsRandomLetter = *req.IsRandomLetter
		}
		if req.SelectedCategories != nil {
			if len(req.SelectedCategories) == 0 {
				return errValidation("selected_categories", "at least one category must be selected")
			}
			seen := make(map[string]struct{}, len(req.SelectedCategories))
			cleaned := make([]string, 0, len(req.SelectedCategories))
			for _, key := range req.SelectedCategories {
				if !validCategoryKey(key) {
					return errValidation("selected_categories", "invalid category: %s", key)
				}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				cleaned = append(cleaned, key)
			}
			session.SelectedCategories = cleaned
		}
		if req.TotalRounds != nil {
			if *req.TotalRounds < 1 {
				return errValidation("total_rounds", "total rounds must be at least 1")
			}
			session.TotalRounds = *req.TotalRounds
		}
		if req.RoundTimerSeconds != nil {
			if *req.RoundTimerSeconds < minRoundTimerSeconds || *req.RoundTimerSeconds > maxRoundTimerSeconds {
				return errValidation("round_timer_seconds", "timer duration must be between %d and %d seconds",
					minRoundTimerSeconds, maxRoundTimerSeconds)
			}
			session.RoundTimerSeconds = *req.RoundTimerSeconds
		}
		if req.ReduceTimerSeconds != nil {
			if *req.ReduceTimerSeconds < minReduceTimerSeconds || *req.ReduceTimerSeconds > maxReduceTimerSeconds {
				return errValidation("reduce_timer_on_complete_seconds", "reduce timer duration must be between %d and %d seconds",
					minReduceTimerSeconds, maxReduceTimerSeconds)
			}
			session.ReduceTimerSeconds = *req.ReduceTimerSeconds
		}

		s.persistSession(room)
		sessionData = sessionPayload(room)
		roomData = roomPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.broadcast(roomID, eventRoomUpdate, roomData)
	return sessionData, nil
}

// StartSession begins the game: round 1, first letter drawn or taken
// from config. Multi-round games always use random letters.
func (s *Server) StartSession(user identity.User, roomID string) (map[string]any, error) {
	var sessionData map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.HostID != user.ID {
			return errForbidden("only the host can start the game")
		}
		session := s.ensureSession(room)
		if len(session.SelectedCategories) == 0 {
			return errValidation("selected_categories", "configure categories first")
		}

		session.CurrentRound = 1
		session.IsCompleted = false
		session.RoundLetters = nil
		session.Answers = nil
		session.RoundAdvanceScheduled = false

		if session.TotalRounds > 1 || session.IsRandomLetter {
			session.Letter = randomLetter()
			session.IsRandomLetter = true
		} else if session.Letter == "" {
			return errValidation("letter", "set a letter or enable random")
		}

		now := s.now()
		session.RoundLetters = []string{session.Letter}
		session.RoundStartTime = &now

		// Cancel inside the transaction so a stale timer from a prior
		// game can never race an arm for the new one.
		s.sched.Cancel(room.ID)
		s.persistSession(room)
		sessionData = sessionPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.persistEvent(roomID, "game_started", map[string]any{"user_id": user.ID})
	s.log.Info("game started", zap.String("room_id", roomID), zap.Int64("host_id", user.ID))
	s.broadcast(roomID, eventGameStarted, sessionData)
	return sessionData, nil
}

// SubmitAnswer upserts the caller's answers for the current round.
// Unknown categories are dropped and values trimmed; nothing is
// rejected. When the submission completes the round, scoring runs and
// the auto-advance timer is armed with the shortened delay.
func (s *Server) SubmitAnswer(user identity.User, roomID string, answers map[string]string) (map[string]any, error) {
	var roomData map[string]any
	var submittedBy string
	var roundComplete bool
	var countdown int

	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		player := room.findPlayerByUser(user.ID)
		if player == nil {
			return errForbidden("you are not a member of this room")
		}
		session := room.Session
		if session == nil || !session.Started() {
			return errConflict("game has not started yet")
		}
		if session.IsCompleted {
			return errConflict("game is already completed")
		}

		cleaned := make(map[string]string, len(session.SelectedCategories))
		for _, category := range session.SelectedCategories {
			cleaned[category] = strings.TrimSpace(answers[category])
		}

		now := s.now()
		if existing := session.answerFor(player.ID, session.CurrentRound); existing != nil {
			existing.Answers = cleaned
			existing.Points = 0
			existing.PointsPerCategory = nil
			existing.SubmittedAt = now
		} else {
			session.Answers = append(session.Answers, PlayerAnswer{
				PlayerID:    player.ID,
				RoundNumber: session.CurrentRound,
				Answers:     cleaned,
				SubmittedAt: now,
			})
		}

		submittedBy = player.Username
		roundComplete, countdown = s.settleRound(room)
		if !roundComplete {
			s.persistAnswer(room, session.answerFor(player.ID, session.CurrentRound))
			s.persistSession(room)
		}
		roomData = roomPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("answer submitted",
		zap.String("room_id", roomID),
		zap.Int64("user_id", user.ID),
		zap.Bool("all_submitted", roundComplete))
	s.broadcast(roomID, eventPlayerSubmitted, map[string]any{
		"username":      submittedBy,
		"all_submitted": roundComplete,
	})
	s.broadcast(roomID, eventRoomUpdate, roomData)
	if roundComplete && countdown > 0 {
		s.broadcast(roomID, eventRoundAdvancing, map[string]any{
			"countdown_seconds": countdown,
		})
	}
	return roomData, nil
}

// settleRound recomputes scores and arms the auto-advance timer when
// the current round is fully submitted. Reached from the completing
// submit and from membership changes that lower the bar (a leave or
// kick of the last holdout completes the round just like a submit
// would). Must run under the room lock.
func (s *Server) settleRound(room *Room) (bool, int) {
	session := room.Session
	if session == nil || session.IsCompleted {
		return false, 0
	}
	if !maybeScoreRound(room) {
		return false, 0
	}
	countdown := 0
	if !session.RoundAdvanceScheduled {
		session.RoundAdvanceScheduled = true
		countdown = s.advanceDelaySeconds(session, s.now())
		expectedRound := session.CurrentRound
		s.sched.Arm(room.ID, time.Duration(countdown)*time.Second, func() {
			s.autoAdvanceRound(room.ID, expectedRound)
		})
	}
	for _, answer := range session.roundAnswers(session.CurrentRound) {
		s.persistAnswer(room, answer)
	}
	s.persistSession(room)
	return true, countdown
}

// advanceDelaySeconds computes the auto-advance delay when a round
// completes: the time left on the round clock, shortened to the
// configured reduce value when more than that remains.
func (s *Server) advanceDelaySeconds(session *GameSession, now time.Time) int {
	remaining := session.RoundTimerSeconds
	if session.RoundStartTime != nil {
		elapsed := int(now.Sub(*session.RoundStartTime) / time.Second)
		remaining = session.RoundTimerSeconds - elapsed
	}
	if remaining > session.ReduceTimerSeconds {
		remaining = session.ReduceTimerSeconds
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// AdvanceRound is the host-driven advance. It refuses to skip ahead of
// players who have not submitted.
func (s *Server) AdvanceRound(user identity.User, roomID string) (map[string]any, error) {
	var roomData map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.HostID != user.ID {
			return errForbidden("only the host can advance the round")
		}
		session := room.Session
		if session == nil || !session.Started() {
			return errConflict("game has not started yet")
		}
		if session.IsCompleted {
			return errConflict("game is already completed")
		}
		if !allSubmitted(room, session.CurrentRound) {
			return errConflict("not all players have submitted yet")
		}
		s.advanceRoundLocked(room)
		// Cancel under the room lock: a cancel issued after the lock
		// is released could kill a timer armed for the next round in
		// the meantime.
		s.sched.Cancel(room.ID)
		roomData = roomPayload(room)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("round advanced", zap.String("room_id", roomID), zap.Int64("host_id", user.ID))
	s.broadcast(roomID, eventRoomUpdate, roomData)
	return roomData, nil
}

// autoAdvanceRound is the scheduler fire path. It runs the same
// transition as AdvanceRound but under a stricter recheck: the room
// may have been deleted, the game completed, the round already
// advanced, or a membership change may have reopened the round. All of
// those abort silently (log only) after clearing the scheduled flag;
// there is no caller to surface an error to.
func (s *Server) autoAdvanceRound(roomID string, expectedRound int) {
	var roomData map[string]any
	err := s.store.Update(roomID, func(room *Room) error {
		session := room.Session
		if !room.IsActive || session == nil {
			return errNotFound("room gone")
		}
		session.RoundAdvanceScheduled = false
		if session.IsCompleted {
			s.persistSession(room)
			return errConflict("game is already completed")
		}
		if session.CurrentRound != expectedRound {
			s.persistSession(room)
			return errConflict("round already advanced")
		}
		if !allSubmitted(room, session.CurrentRound) {
			s.persistSession(room)
			return errConflict("round reopened before advance")
		}
		s.advanceRoundLocked(room)
		roomData = roomPayload(room)
		return nil
	})
	if err != nil {
		s.log.Info("auto-advance skipped", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	s.log.Info("round auto-advanced", zap.String("room_id", roomID), zap.Int("from_round", expectedRound))
	s.broadcast(roomID, eventRoomUpdate, roomData)
}

// advanceRoundLocked performs the shared advance transition. Callers
// hold the room lock and have already validated the preconditions.
func (s *Server) advanceRoundLocked(room *Room) {
	session := room.Session
	// Recompute before moving on so the closing round can never be
	// finalized unscored, whichever path completed it.
	if maybeScoreRound(room) {
		for _, answer := range session.roundAnswers(session.CurrentRound) {
			s.persistAnswer(room, answer)
		}
	}
	session.RoundAdvanceScheduled = false
	if session.CurrentRound < session.TotalRounds {
		session.CurrentRound++
		session.Letter = randomLetter()
		session.RoundLetters = append(session.RoundLetters, session.Letter)
		now := s.now()
		session.RoundStartTime = &now
	} else {
		session.IsCompleted = true
	}
	s.persistSession(room)
}

// ensureSession creates the default session for rooms that lack one.
// Must run under the room lock.
func (s *Server) ensureSession(room *Room) *GameSession {
	if room.Session == nil {
		room.Session = &GameSession{
			IsRandomLetter:     true,
			SelectedCategories: []string{},
			TotalRounds:        1,
			CurrentRound:       1,
			RoundTimerSeconds:  s.cfg.RoundTimerSeconds,
			ReduceTimerSeconds: s.cfg.ReduceTimerSeconds,
		}
		s.persistSession(room)
	}
	return room.Session
}
