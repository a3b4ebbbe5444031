package server

import (
	"sync"
	"time"
)

// Scheduler defers a single round-advance task per room. Arming while
// a task is pending cancels the old one first (cancel-and-replace).
// The in-memory implementation is deliberately not persisted: losing a
// pending arm on restart costs liveness, not correctness, because the
// host can always advance manually.
type Scheduler interface {
	Arm(roomID string, delay time.Duration, fire func())
	Cancel(roomID string)
}

type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerScheduler() *timerScheduler {
	return &timerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *timerScheduler) Arm(roomID string, delay time.Duration, fire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[roomID]; ok {
		existing.Stop()
	}
	s.timers[roomID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, roomID)
		s.mu.Unlock()
		fire()
	})
}

func (s *timerScheduler) Cancel(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[roomID]; ok {
		timer.Stop()
		delete(s.timers, roomID)
	}
}
