package session

import "sync"

// State is a conversation's position in the menu flow.
type State string

const (
	// StateInitial shows the main menu and classifies free text.
	StateInitial State = "initial"

	// StateAwaitingDate expects a DD/MM/YYYY availability date.
	StateAwaitingDate State = "awaiting_date"

	// StateInfoMenu asked "want the full amenity list?".
	StateInfoMenu State = "info"

	// StateInfoLazerMenu showed the amenity list and asked about pricing.
	StateInfoLazerMenu State = "info_lazer"

	// StatePriceFollowUp showed the pricing pointer and asked about booking a
	// date. Reachable only through legacy menu paths.
	StatePriceFollowUp State = "price_followup"

	// StateAttendantOwned means a human operator holds the conversation. Kept
	// in lockstep with Conversation.AttendantOwned.
	StateAttendantOwned State = "attendant"
)

// Conversation is the per-remote-party record. All fields after mu are
// guarded by it; the orchestrator is the only mutator.
type Conversation struct {
	mu sync.Mutex

	ID             string
	State          State
	BotEnabled     bool
	AttendantOwned bool

	// processing suppresses inbound handling while an external call
	// (availability lookup, text generation) is in flight for this
	// conversation. Always cleared before the handler returns.
	processing bool
}
