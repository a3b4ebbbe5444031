package server

import "strings"

// Points awarded per category: 15 for the only valid answer in the
// room, 10 for a valid answer nobody else gave, 5 for each member of a
// duplicate group. Invalid answers (empty or wrong first letter) score
// 0 and are not counted as duplicate partners.
const (
	soloAnswerPoints      = 15
	uniqueAnswerPoints    = 10
	duplicateAnswerPoints = 5
)

// scoreRound recomputes Points and PointsPerCategory for every answer
// of a round. It is deterministic and idempotent: earlier results are
// overwritten, never accumulated.
func scoreRound(letter string, categories []string, answers []*PlayerAnswer) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	for _, answer := range answers {
		answer.Points = 0
		answer.PointsPerCategory = make(map[string]int, len(categories))
		for _, category := range categories {
			answer.PointsPerCategory[category] = 0
		}
	}
	for _, category := range categories {
		type candidate struct {
			answer     *PlayerAnswer
			normalized string
		}
		var candidates []candidate
		for _, answer := range answers {
			raw := strings.TrimSpace(answer.Answers[category])
			if raw == "" {
				continue
			}
			if !strings.EqualFold(raw[:letterPrefixLen(raw)], letter) {
				continue
			}
			candidates = append(candidates, candidate{
				answer:     answer,
				normalized: strings.ToLower(raw),
			})
		}
		switch len(candidates) {
		case 0:
			continue
		case 1:
			candidates[0].answer.PointsPerCategory[category] = soloAnswerPoints
		default:
			counts := make(map[string]int, len(candidates))
			for _, c := range candidates {
				counts[c.normalized]++
			}
			for _, c := range candidates {
				if counts[c.normalized] == 1 {
					c.answer.PointsPerCategory[category] = uniqueAnswerPoints
				} else {
					c.answer.PointsPerCategory[category] = duplicateAnswerPoints
				}
			}
		}
	}
	for _, answer := range answers {
		total := 0
		for _, points := range answer.PointsPerCategory {
			total += points
		}
		answer.Points = total
	}
}

// letterPrefixLen returns the byte length of the first rune so
// multi-byte letters compare correctly against the round letter.
func letterPrefixLen(s string) int {
	for i := range s {
		if i > 0 {
			return i
		}
	}
	return len(s)
}

// allSubmitted reports whether every current member has an answer row
// for the round. Evaluated against the member set at call time.
func allSubmitted(room *Room, round int) bool {
	if room.Session == nil || len(room.Players) == 0 {
		return false
	}
	for i := range room.Players {
		if room.Session.answerFor(room.Players[i].ID, round) == nil {
			return false
		}
	}
	return true
}

// maybeScoreRound runs the scoring recompute if and only if the round
// is fully submitted. Returns whether scoring ran.
func maybeScoreRound(room *Room) bool {
	session := room.Session
	if session == nil || !session.Started() {
		return false
	}
	round := session.CurrentRound
	if !allSubmitted(room, round) {
		return false
	}
	scoreRound(session.Letter, session.SelectedCategories, session.roundAnswers(round))
	return true
}
