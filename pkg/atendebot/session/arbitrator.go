package session

import (
	"context"
	"time"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/timers"
)

// takeoverLocked flips the conversation to attendant ownership. Caller holds
// conv.mu. Idempotent: a second signal while already owned only refreshes the
// attendant timer.
func (o *Orchestrator) takeoverLocked(ctx context.Context, conv *Conversation) {
	if !conv.AttendantOwned {
		conv.AttendantOwned = true
		conv.State = StateAttendantOwned
		o.logger.Info("attendant took over", "conversation", conv.ID)
	}
	o.timers.Cancel(conv.ID, timers.ClassIdle)
	o.timers.Reset(conv.ID, timers.ClassAttendant, o.cfg.AttendantTimeout, func() {
		o.attendantExpired(ctx, conv.ID)
	})
}

// HandleComposing reacts to the account's own typing indicator, seen from
// another device. Typing is only ever human-authored, so ownership flips
// immediately, no debounce.
func (o *Orchestrator) HandleComposing(ctx context.Context, ev ComposingEvent) {
	conv := o.conversation(ev.ConversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	o.takeoverLocked(ctx, conv)
}

// HandleOutbound classifies an outbound message on the conversation. Own
// echoes are ignored; anything unattributed after the debounce window is a
// human operator and flips ownership. An attribution entry evicted during the
// wait also reads as human, which favors a false handoff over two responders
// talking over each other.
func (o *Orchestrator) HandleOutbound(ctx context.Context, ev EchoEvent) {
	if !ev.IsSelf || ev.MessageID == "" {
		return
	}
	if o.tracker.IsSelf(ev.MessageID) {
		return
	}

	// The attribution record may still be landing: the send call records the
	// ID only after the transport returns it, which can lose the race with
	// the echo event.
	select {
	case <-ctx.Done():
		return
	case <-time.After(o.cfg.Debounce):
	}

	if o.tracker.IsSelf(ev.MessageID) {
		return
	}

	conv := o.conversation(ev.ConversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	o.logger.Info("unattributed outbound message, assuming human",
		"conversation", conv.ID, "message_id", ev.MessageID)
	o.takeoverLocked(ctx, conv)
}
