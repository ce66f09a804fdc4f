package gateway

import (
	"sync"
	"time"

	"github.com/cuppid-coder/connect/internal/presence"
)

type throttleKey struct {
	userID string
	room   presence.RoomKey
}

type throttleEntry struct {
	timer *time.Timer
}

// typingThrottle suppresses repeated typing events for the same
// (user, room) pair inside a fixed window. Entries clean themselves up
// via time.AfterFunc when the window expires.
type typingThrottle struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[throttleKey]*throttleEntry
}

func newTypingThrottle(window time.Duration) *typingThrottle {
	return &typingThrottle{
		window:  window,
		entries: make(map[throttleKey]*throttleEntry),
	}
}

// Allow reports whether a typing event for (userID, room) should be
// relayed. The first event in a window is allowed; repeats are suppressed
// until the window expires or Reset is called.
func (t *typingThrottle) Allow(userID string, room presence.RoomKey) bool {
	if t.window <= 0 {
		return true
	}
	key := throttleKey{userID: userID, room: room}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		return false
	}
	entry := &throttleEntry{}
	entry.timer = time.AfterFunc(t.window, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.entries[key] == entry {
			delete(t.entries, key)
		}
	})
	t.entries[key] = entry
	return true
}

// Reset clears the window for (userID, room) so the next typing event
// relays immediately. Called on stop-typing.
func (t *typingThrottle) Reset(userID string, room presence.RoomKey) {
	key := throttleKey{userID: userID, room: room}

	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}
