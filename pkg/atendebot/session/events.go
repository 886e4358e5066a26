// Package session owns the per-conversation state machine, the handoff
// arbitration between bot and human attendant, and the routing of transport
// events. One record per remote conversation, mutated only under that
// conversation's lock.
package session

// Event is anything the transport reports that the orchestrator routes.
type Event interface {
	Conversation() string
}

// MessageEvent is an inbound text message from a remote party.
type MessageEvent struct {
	ConversationID string
	Text           string
	SenderName     string
	IsGroup        bool
}

func (e MessageEvent) Conversation() string { return e.ConversationID }

// ComposingEvent signals the account's own typing indicator in a
// conversation, observed from another connected device. Only a human operator
// produces these.
type ComposingEvent struct {
	ConversationID string
}

func (e ComposingEvent) Conversation() string { return e.ConversationID }

// EchoEvent reports an outbound message observed on the conversation. IsSelf
// means it was sent from this account (by this process or by an operator on
// another device); the attribution tracker decides which.
type EchoEvent struct {
	ConversationID string
	MessageID      string
	IsSelf         bool
}

func (e EchoEvent) Conversation() string { return e.ConversationID }
