package server

import (
	"net/http"
	"time"

	"panstwa-miasta/internal/config"
	"panstwa-miasta/internal/identity"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	store *Store
	db    *gorm.DB
	hub   *wsHub
	cfg   config.Config
	ids   identity.Provider
	sched Scheduler
	log   *zap.Logger
	now   func() time.Time
}

func New(conn *gorm.DB, cfg config.Config, ids identity.Provider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store: NewStore(),
		db:    conn,
		hub:   newWSHub(),
		cfg:   cfg,
		ids:   ids,
		sched: newTimerScheduler(),
		log:   logger,
		now:   timeNowUTC,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/categories", s.handleCategories)
		r.Get("/rooms", s.handleListRooms)
		r.Post("/rooms", s.handleCreateRoom)
		r.Post("/rooms/join", s.handleJoinRoom)
		r.Route("/rooms/{roomID}", func(r chi.Router) {
			r.Get("/", s.handleRoomDetail)
			r.Delete("/", s.handleDeleteRoom)
			r.Post("/leave", s.handleLeaveRoom)
			r.Delete("/players/{playerID}", s.handleRemovePlayer)
			r.Get("/session", s.handleGetSession)
			r.Put("/session", s.handleUpdateSession)
			r.Post("/session/start", s.handleStartSession)
			r.Post("/session/advance", s.handleAdvanceRound)
			r.Post("/answers", s.handleSubmitAnswer)
			r.Get("/scores", s.handleGetScores)
		})
	})
	r.Get("/ws/rooms/{roomID}", s.handleRoomWebsocket)
	return r
}
