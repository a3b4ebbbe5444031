package server

import (
	"sync"
	"testing"
	"time"

	"panstwa-miasta/internal/config"
	"panstwa-miasta/internal/identity"
)

// fakeScheduler records arms and cancels and fires only on demand, so
// tests never wait on a wall clock.
type fakeScheduler struct {
	mu        sync.Mutex
	pending   map[string]func()
	lastDelay map[string]time.Duration
	armCount  int
	cancels   int
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		pending:   make(map[string]func()),
		lastDelay: make(map[string]time.Duration),
	}
}

func (f *fakeScheduler) Arm(roomID string, delay time.Duration, fire func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[roomID] = fire
	f.lastDelay[roomID] = delay
	f.armCount++
}

func (f *fakeScheduler) Cancel(roomID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, roomID)
	f.cancels++
}

func (f *fakeScheduler) fire(roomID string) bool {
	f.mu.Lock()
	fn, ok := f.pending[roomID]
	delete(f.pending, roomID)
	f.mu.Unlock()
	if !ok {
		return false
	}
	fn()
	return true
}

func (f *fakeScheduler) armedDelay(roomID string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delay, ok := f.lastDelay[roomID]
	return delay, ok
}

func (f *fakeScheduler) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

var (
	hostUser  = identity.User{ID: 1, Username: "ada", GameName: "Ada"}
	guestUser = identity.User{ID: 2, Username: "bob", GameName: "Bob"}
	thirdUser = identity.User{ID: 3, Username: "cleo", GameName: "Cleo"}
)

func testIdentity() identity.Static {
	return identity.Static{
		"token-ada":  hostUser,
		"token-bob":  guestUser,
		"token-cleo": thirdUser,
	}
}

type testServer struct {
	*Server
	sched *fakeScheduler
	clock *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	sched := newFakeScheduler()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	srv := New(nil, config.Default(), testIdentity(), nil)
	srv.sched = sched
	srv.now = clock.Now
	return &testServer{Server: srv, sched: sched, clock: clock}
}

// createRoomWith creates a room hosted by hostUser and joins the given
// extra users.
func (ts *testServer) createRoomWith(t *testing.T, joiners ...identity.User) string {
	t.Helper()
	payload, err := ts.CreateRoom(hostUser, "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	roomID := payload["id"].(string)
	for _, user := range joiners {
		if _, err := ts.JoinRoom(user, roomID); err != nil {
			t.Fatalf("join room: %v", err)
		}
	}
	return roomID
}

// startGame configures categories and a fixed letter (single round by
// default) and starts the session.
func (ts *testServer) startGame(t *testing.T, roomID, letter string, totalRounds int, categories ...string) {
	t.Helper()
	isRandom := letter == ""
	req := UpdateSessionRequest{
		IsRandomLetter:     &isRandom,
		SelectedCategories: categories,
		TotalRounds:        &totalRounds,
	}
	if letter != "" {
		req.Letter = &letter
	}
	if _, err := ts.UpdateConfig(hostUser, roomID, req); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if _, err := ts.StartSession(hostUser, roomID); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

func (ts *testServer) session(t *testing.T, roomID string) GameSession {
	t.Helper()
	var out GameSession
	if err := ts.store.View(roomID, func(room *Room) error {
		out = *room.Session
		out.Answers = append([]PlayerAnswer(nil), room.Session.Answers...)
		return nil
	}); err != nil {
		t.Fatalf("view room: %v", err)
	}
	return out
}

func (ts *testServer) playerID(t *testing.T, roomID string, userID int64) int64 {
	t.Helper()
	var id int64
	if err := ts.store.View(roomID, func(room *Room) error {
		if player := room.findPlayerByUser(userID); player != nil {
			id = player.ID
		}
		return nil
	}); err != nil {
		t.Fatalf("view room: %v", err)
	}
	return id
}
