package server

import (
	"context"
	"net/http"
	"strconv"

	"panstwa-miasta/internal/identity"

	"github.com/go-chi/chi/v5"
)

type contextKey int

const userContextKey contextKey = iota

func userFrom(ctx context.Context) identity.User {
	user, _ := ctx.Value(userContextKey).(identity.User)
	return user
}

// requireUser authenticates the bearer token and stashes the identity
// on the request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.ids.Authenticate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

type createRoomRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if r.ContentLength != 0 {
		if err := readJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	payload, err := s.CreateRoom(userFrom(r.Context()), req.Name)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ListRooms(userFrom(r.Context())))
}

type joinRoomRequest struct {
	RoomID string `json:"room_id"`
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := readJSON(r.Body, &req); err != nil || req.RoomID == "" {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}
	payload, err := s.JoinRoom(userFrom(r.Context()), req.RoomID)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.LeaveRoom(userFrom(r.Context()), chi.URLParam(r, "roomID")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "left room successfully"})
}

func (s *Server) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	payload, err := s.RoomDetail(userFrom(r.Context()), chi.URLParam(r, "roomID"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.DeleteRoom(userFrom(r.Context()), chi.URLParam(r, "roomID")); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "room deleted successfully"})
}

func (s *Server) handleRemovePlayer(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(chi.URLParam(r, "playerID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	if err := s.RemovePlayer(userFrom(r.Context()), chi.URLParam(r, "roomID"), playerID); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "player removed successfully"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	payload, err := s.GetSession(userFrom(r.Context()), chi.URLParam(r, "roomID"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req UpdateSessionRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload, err := s.UpdateConfig(userFrom(r.Context()), chi.URLParam(r, "roomID"), req)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	payload, err := s.StartSession(userFrom(r.Context()), chi.URLParam(r, "roomID"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

type submitAnswerRequest struct {
	Answers map[string]any `json:"answers"`
}

func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := readJSON(r.Body, &req); err != nil || req.Answers == nil {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}
	// Lenient boundary: non-string values coerce to empty rather than
	// failing the whole submission.
	answers := make(map[string]string, len(req.Answers))
	for key, value := range req.Answers {
		if text, ok := value.(string); ok {
			answers[key] = text
		} else {
			answers[key] = ""
		}
	}
	payload, err := s.SubmitAnswer(userFrom(r.Context()), chi.URLParam(r, "roomID"), answers)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	round := 0
	if raw := r.URL.Query().Get("round"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			writeError(w, http.StatusBadRequest, "invalid round")
			return
		}
		round = value
	}
	payload, err := s.GetScores(userFrom(r.Context()), chi.URLParam(r, "roomID"), round)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleAdvanceRound(w http.ResponseWriter, r *http.Request) {
	payload, err := s.AdvanceRound(userFrom(r.Context()), chi.URLParam(r, "roomID"))
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoryCatalog)
}
