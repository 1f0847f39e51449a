// Package presence maintains the derived online/offline status per user
// identity. The online set is decoupled from the session registry by a
// debounce window: a disconnect only becomes a visible offline transition if
// the user has not rebound within the window. This absorbs rapid
// reconnect/reload cycles without flickering peers' UI.
package presence

import (
	"log"
	"sort"
	"sync"
	"time"
)

// DefaultDebounce is the delay before a disconnect is treated as a true
// offline transition.
const DefaultDebounce = 2 * time.Second

// Tracker owns the online set and the pending offline timers. It is the only
// writer to both. Broadcast of transitions is delegated to the callback so
// the tracker stays free of transport concerns.
type Tracker struct {
	mu      sync.Mutex
	online  map[int64]struct{}
	pending map[int64]*time.Timer
	window  time.Duration

	// isBound reports whether the identity currently has a live session.
	// Consulted when a debounce timer fires, so a rebind that happened
	// after scheduling suppresses the offline broadcast.
	isBound func(userID int64) bool

	// broadcast announces a presence transition to all peers.
	broadcast func(userID int64, isOnline bool)
}

// NewTracker creates a Tracker with the given debounce window. A window of 0
// falls back to DefaultDebounce.
func NewTracker(window time.Duration, isBound func(int64) bool, broadcast func(int64, bool)) *Tracker {
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Tracker{
		online:    make(map[int64]struct{}),
		pending:   make(map[int64]*time.Timer),
		window:    window,
		isBound:   isBound,
		broadcast: broadcast,
	}
}

// MarkOnline adds userID to the online set and cancels any pending offline
// timer for it. The transition is broadcast to peers every time — a
// reconnecting user re-announces, which is harmless, while the cancelled
// timer guarantees no stale offline broadcast ever follows.
func (t *Tracker) MarkOnline(userID int64) {
	t.mu.Lock()
	if timer, ok := t.pending[userID]; ok {
		timer.Stop()
		delete(t.pending, userID)
	}
	t.online[userID] = struct{}{}
	t.mu.Unlock()

	t.broadcast(userID, true)
}

// ScheduleOffline arms the debounced offline check for userID. If at expiry
// the identity still has no bound session, it is removed from the online set
// and the offline transition is broadcast. A rebind before expiry cancels
// the timer via MarkOnline; a rebind that races the firing timer is caught
// by the isBound re-check.
func (t *Tracker) ScheduleOffline(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// An earlier disconnect may already have armed a timer; keep the first
	// one so the window is measured from the initial disconnect.
	if _, ok := t.pending[userID]; ok {
		return
	}

	t.pending[userID] = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		delete(t.pending, userID)
		if t.isBound(userID) {
			// Rebound while the timer was in flight; still online.
			t.mu.Unlock()
			return
		}
		delete(t.online, userID)
		t.mu.Unlock()

		log.Printf("[presence] user=%d marked offline", userID)
		t.broadcast(userID, false)
	})
}

// IsOnline reports whether userID is currently in the online set. Users
// inside their debounce window after a disconnect still count as online.
func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.Lock()
	_, ok := t.online[userID]
	t.mu.Unlock()
	return ok
}

// Online returns a sorted snapshot of the online set.
func (t *Tracker) Online() []int64 {
	t.mu.Lock()
	users := make([]int64, 0, len(t.online))
	for id := range t.online {
		users = append(users, id)
	}
	t.mu.Unlock()

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users
}

// Stop cancels all pending offline timers. Used during shutdown so no
// broadcast fires into a closed server.
func (t *Tracker) Stop() {
	t.mu.Lock()
	for id, timer := range t.pending {
		timer.Stop()
		delete(t.pending, id)
	}
	t.mu.Unlock()
}
