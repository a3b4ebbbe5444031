package server

import (
	"sort"
	"time"

	"panstwa-miasta/internal/identity"
)

func roomPayload(room *Room) map[string]any {
	players := make([]map[string]any, 0, len(room.Players))
	var hostUsername, hostGameName string
	for i := range room.Players {
		player := &room.Players[i]
		players = append(players, map[string]any{
			"id":        player.ID,
			"user_id":   player.UserID,
			"username":  player.Username,
			"game_name": player.GameName,
			"joined_at": player.JoinedAt.Format(time.RFC3339),
		})
		if player.UserID == room.HostID {
			hostUsername = player.Username
			hostGameName = player.GameName
		}
	}
	return map[string]any{
		"id":             room.ID,
		"name":           room.Name,
		"host_id":        room.HostID,
		"host_username":  hostUsername,
		"host_game_name": hostGameName,
		"created_at":     room.CreatedAt.Format(time.RFC3339),
		"is_active":      room.IsActive,
		"players":        players,
		"player_count":   len(room.Players),
		"game_session":   sessionPayload(room),
	}
}

func sessionPayload(room *Room) map[string]any {
	session := room.Session
	if session == nil {
		return nil
	}
	display := make([]string, 0, len(session.SelectedCategories))
	for _, key := range session.SelectedCategories {
		display = append(display, categoryLabel(key))
	}
	var roundStart any
	if session.RoundStartTime != nil {
		roundStart = session.RoundStartTime.Format(time.RFC3339)
	}
	return map[string]any{
		"letter":                           nullableLetter(session.Letter),
		"is_random_letter":                 session.IsRandomLetter,
		"selected_categories":              append([]string{}, session.SelectedCategories...),
		"selected_categories_display":      display,
		"final_letter":                     finalLetter(session),
		"total_rounds":                     session.TotalRounds,
		"current_round":                    session.CurrentRound,
		"is_completed":                     session.IsCompleted,
		"round_letters":                    append([]string{}, session.RoundLetters...),
		"round_advance_scheduled":          session.RoundAdvanceScheduled,
		"round_timer_seconds":              session.RoundTimerSeconds,
		"reduce_timer_on_complete_seconds": session.ReduceTimerSeconds,
		"round_start_time":                 roundStart,
		"submitted_count":                  len(session.roundAnswers(session.CurrentRound)),
		"all_submitted":                    allSubmitted(room, session.CurrentRound),
	}
}

func nullableLetter(letter string) any {
	if letter == "" {
		return nil
	}
	return letter
}

// finalLetter hides the letter while a random game has not started, so
// clients show "random" instead of a value that would change on every
// config save.
func finalLetter(session *GameSession) any {
	if session.IsRandomLetter && !session.Started() {
		return nil
	}
	return nullableLetter(session.Letter)
}

// GetScores returns the score sheet for one round (default: current).
// Answer contents and points stay hidden until every member of the
// room has submitted that round; only the submitted-player names leak
// earlier.
func (s *Server) GetScores(user identity.User, roomID string, round int) (map[string]any, error) {
	var payload map[string]any
	err := s.store.View(roomID, func(room *Room) error {
		if !room.IsActive {
			return errNotFound("room not found or inactive")
		}
		if room.findPlayerByUser(user.ID) == nil {
			return errForbidden("you are not a member of this room")
		}
		session := room.Session
		if session == nil || !session.Started() {
			return errConflict("game has not started yet")
		}
		if round <= 0 {
			round = session.CurrentRound
		}
		if round > session.CurrentRound {
			return errValidation("round", "round %d has not been played", round)
		}
		payload = scoresPayload(room, round)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func scoresPayload(room *Room, round int) map[string]any {
	session := room.Session
	answers := session.roundAnswers(round)
	complete := allSubmitted(room, round)

	submitted := make([]string, 0, len(answers))
	for _, answer := range answers {
		if player := room.findPlayer(answer.PlayerID); player != nil {
			submitted = append(submitted, player.Username)
		}
	}
	sort.Strings(submitted)

	letter := ""
	if round >= 1 && round <= len(session.RoundLetters) {
		letter = session.RoundLetters[round-1]
	}

	payload := map[string]any{
		"round_number":      round,
		"letter":            nullableLetter(letter),
		"all_submitted":     complete,
		"submitted_players": submitted,
	}
	if !complete {
		return payload
	}

	roundScores := make([]map[string]any, 0, len(answers))
	for _, answer := range answers {
		player := room.findPlayer(answer.PlayerID)
		if player == nil {
			continue
		}
		perCategory := make(map[string]int, len(answer.PointsPerCategory))
		for key, points := range answer.PointsPerCategory {
			perCategory[key] = points
		}
		roundScores = append(roundScores, map[string]any{
			"player_id":           player.ID,
			"username":            player.Username,
			"game_name":           player.GameName,
			"answers":             copyAnswers(answer.Answers),
			"points":              answer.Points,
			"points_per_category": perCategory,
		})
	}
	sort.Slice(roundScores, func(i, j int) bool {
		return roundScores[i]["username"].(string) < roundScores[j]["username"].(string)
	})
	payload["round_scores"] = roundScores
	payload["total_scores"] = totalScores(room)
	return payload
}

// totalScores sums points across all rounds per player. Points are
// only ever non-zero once a round was fully submitted and scored, so
// partially-submitted rounds contribute nothing.
func totalScores(room *Room) []map[string]any {
	session := room.Session
	totals := make(map[int64]int, len(room.Players))
	for i := range session.Answers {
		totals[session.Answers[i].PlayerID] += session.Answers[i].Points
	}
	out := make([]map[string]any, 0, len(room.Players))
	for i := range room.Players {
		player := &room.Players[i]
		out = append(out, map[string]any{
			"player_id":    player.ID,
			"username":     player.Username,
			"game_name":    player.GameName,
			"total_points": totals[player.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool {
		left, right := out[i]["total_points"].(int), out[j]["total_points"].(int)
		if left != right {
			return left > right
		}
		return out[i]["username"].(string) < out[j]["username"].(string)
	})
	return out
}

func copyAnswers(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for key, value := range answers {
		out[key] = value
	}
	return out
}
