// Package presence tracks which players are connected to voice chat and who
// is currently speaking, for presentation collaborators (nameplates, HUD).
package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTalkingWindow is how long after the last audio frame a player is
// still reported as speaking.
const DefaultTalkingWindow = 500 * time.Millisecond

// Tracker is a pure query surface; it owns no broadcast responsibility.
type Tracker struct {
	window time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	lastTalk  map[uuid.UUID]time.Time
	connected map[uuid.UUID]struct{}
}

// NewTracker creates a Tracker with the given speaking window.
// A window of 0 uses DefaultTalkingWindow.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultTalkingWindow
	}
	return &Tracker{
		window:    window,
		now:       time.Now,
		lastTalk:  make(map[uuid.UUID]time.Time),
		connected: make(map[uuid.UUID]struct{}),
	}
}

// SetWindow adjusts the speaking window, e.g. on config reload.
func (t *Tracker) SetWindow(window time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if window > 0 {
		t.window = window
	}
}

// MarkTalking records that an audio frame was just received from the player.
func (t *Tracker) MarkTalking(identity uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastTalk[identity] = t.now()
}

// MarkConnected records the player as connected to voice chat.
func (t *Tracker) MarkConnected(identity uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected[identity] = struct{}{}
}

// MarkDisconnected clears all state for the player.
func (t *Tracker) MarkDisconnected(identity uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, identity)
	delete(t.lastTalk, identity)
}

// IsSpeaking reports whether the player sent audio within the window.
func (t *Tracker) IsSpeaking(identity uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.lastTalk[identity]
	return ok && t.now().Sub(last) < t.window
}

// IsConnected reports whether the player has a live voice session.
func (t *Tracker) IsConnected(identity uuid.UUID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.connected[identity]
	return ok
}
