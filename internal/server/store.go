package server

import (
	"sync"
)

// Store is the authoritative in-memory room registry. Each room
// carries its own lock so transitions for one room are totally ordered
// while unrelated rooms never contend.
type Store struct {
	mu           sync.RWMutex
	nextPlayerID int64
	rooms        map[string]*roomEntry
}

type roomEntry struct {
	mu   sync.Mutex
	room *Room
}

func NewStore() *Store {
	return &Store{
		nextPlayerID: 1,
		rooms:        make(map[string]*roomEntry),
	}
}

func (s *Store) Add(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = &roomEntry{room: room}
}

func (s *Store) entry(id string) (*roomEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[id]
	return entry, ok
}

// Update runs fn with the room's exclusive lock held. Every read or
// write of room state goes through here; fn must not block on I/O.
func (s *Store) Update(id string, fn func(room *Room) error) error {
	entry, ok := s.entry(id)
	if !ok {
		return errNotFound("room not found")
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return fn(entry.room)
}

// View is Update for read-only callers; the same lock applies.
func (s *Store) View(id string, fn func(room *Room) error) error {
	return s.Update(id, fn)
}

func (s *Store) Contains(id string) bool {
	_, ok := s.entry(id)
	return ok
}

func (s *Store) NextPlayerID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextPlayerID
	s.nextPlayerID++
	return id
}

func (s *Store) RoomIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}
