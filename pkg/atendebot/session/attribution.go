package session

import (
	"sync"
	"time"
)

// defaultAttributionTTL bounds how long a self-authored message ID is
// remembered. The signal is only useful shortly after sending, so expiry is a
// liveness bound, not a correctness one.
const defaultAttributionTTL = 10 * time.Minute

// Tracker remembers the message IDs this process sent, so outbound events can
// be classified as bot echoes versus human-operator messages.
type Tracker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	ttl     time.Duration

	// now is swappable in tests.
	now func() time.Time
}

// NewTracker creates a Tracker. A zero ttl uses the default retention.
func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = defaultAttributionTTL
	}
	return &Tracker{
		expires: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Record marks a message ID as self-authored. Called the instant a send
// returns its transport-assigned ID.
func (t *Tracker) Record(messageID string) {
	if messageID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked()
	t.expires[messageID] = t.now().Add(t.ttl)
}

// IsSelf reports whether the message ID was recorded and has not expired.
func (t *Tracker) IsSelf(messageID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.expires[messageID]
	if !ok {
		return false
	}
	if t.now().After(expiry) {
		delete(t.expires, messageID)
		return false
	}
	return true
}

// pruneLocked evicts expired entries. Amortized over Record calls so the map
// stays bounded without a background goroutine.
func (t *Tracker) pruneLocked() {
	now := t.now()
	for id, expiry := range t.expires {
		if now.After(expiry) {
			delete(t.expires, id)
		}
	}
}

// Len reports the number of live entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.expires)
}
