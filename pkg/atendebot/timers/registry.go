// Package timers schedules per-conversation delayed callbacks. Each
// conversation has at most one pending callback per class: resetting always
// cancels the previously scheduled one before arming the new one.
package timers

import (
	"log/slog"
	"sync"
	"time"
)

// Class identifies which expiry a timer drives.
type Class string

const (
	// ClassIdle fires when a bot-owned conversation has been quiet too long.
	ClassIdle Class = "idle"

	// ClassAttendant fires when a human attendant has been quiet too long,
	// releasing the conversation back to automation.
	ClassAttendant Class = "attendant"
)

type timerKey struct {
	conversation string
	class        Class
}

// Registry owns all pending timers.
type Registry struct {
	mu      sync.Mutex
	pending map[timerKey]*time.Timer
	stopped bool
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		pending: make(map[timerKey]*time.Timer),
		logger:  logger.With("component", "timers"),
	}
}

// Reset schedules fn to run after d, cancelling any callback already pending
// for the same (conversation, class) pair. fn runs on its own goroutine.
func (r *Registry) Reset(conversationID string, class Class, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	key := timerKey{conversationID, class}
	if prev, ok := r.pending[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.mu.Lock()
		// A Reset or Cancel may have raced with the firing: only run if this
		// timer is still the registered one.
		if r.pending[key] != t {
			r.mu.Unlock()
			return
		}
		delete(r.pending, key)
		r.mu.Unlock()
		fn()
	})
	r.pending[key] = t
}

// Cancel drops the pending callback for (conversation, class), if any.
func (r *Registry) Cancel(conversationID string, class Class) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := timerKey{conversationID, class}
	if t, ok := r.pending[key]; ok {
		t.Stop()
		delete(r.pending, key)
	}
}

// CancelAll drops every pending callback for a conversation.
func (r *Registry) CancelAll(conversationID string) {
	r.Cancel(conversationID, ClassIdle)
	r.Cancel(conversationID, ClassAttendant)
}

// Active reports whether a callback is pending for (conversation, class).
func (r *Registry) Active(conversationID string, class Class) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[timerKey{conversationID, class}]
	return ok
}

// Stop cancels everything and refuses further scheduling. Called on shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for key, t := range r.pending {
		t.Stop()
		delete(r.pending, key)
	}
}
