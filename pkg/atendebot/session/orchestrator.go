package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/reservations"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/timers"
)

// Sender delivers outbound text and returns the transport message ID.
type Sender interface {
	SendText(ctx context.Context, conversationID, text string) (string, error)
}

// Responder generates a free-form reply for unmatched input.
type Responder interface {
	GenerateReply(ctx context.Context, userMessage string) (string, error)
}

// AvailabilityChecker answers whether a date is free.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, date string) (reservations.AvailabilityResult, error)
}

// Group is one group conversation known to the transport.
type Group struct {
	ID   string
	Name string
}

// GroupLister enumerates the account's group conversations.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]Group, error)
}

// MonitorRunner triggers an out-of-band reservation alert pass.
type MonitorRunner interface {
	RunCheck(ctx context.Context) error
}

// Config holds the orchestrator's timing knobs.
type Config struct {
	// IdleTimeout closes a quiet bot-owned conversation.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// AttendantTimeout releases a quiet attendant-owned conversation.
	AttendantTimeout time.Duration `yaml:"attendant_timeout"`

	// Debounce is how long an unattributed outbound event waits before being
	// treated as human-authored, letting the attribution record land first.
	Debounce time.Duration `yaml:"debounce"`

	// AttributionTTL bounds the self-authored message ID retention.
	AttributionTTL time.Duration `yaml:"attribution_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:      5 * time.Minute,
		AttendantTimeout: 20 * time.Minute,
		Debounce:         time.Second,
		AttributionTTL:   defaultAttributionTTL,
	}
}

// AccessPolicy filters which conversations are processed. Entries match by
// substring so bare phone numbers match full conversation IDs.
type AccessPolicy struct {
	// TestMode, when true, drops everything not on the allow list.
	TestMode bool `yaml:"test_mode"`

	// Allowed is the test-mode allow list.
	Allowed []string `yaml:"allowed"`

	// Blocked conversations are always dropped.
	Blocked []string `yaml:"blocked"`

	// Admins may run operator commands from group conversations.
	Admins []string `yaml:"admins"`
}

// Permits reports whether events from the conversation are processed.
func (p AccessPolicy) Permits(conversationID string) bool {
	for _, blocked := range p.Blocked {
		if blocked != "" && strings.Contains(conversationID, blocked) {
			return false
		}
	}
	if !p.TestMode {
		return true
	}
	for _, allowed := range p.Allowed {
		if allowed != "" && strings.Contains(conversationID, allowed) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the conversation is an operator conversation.
func (p AccessPolicy) IsAdmin(conversationID string) bool {
	for _, admin := range p.Admins {
		if admin != "" && strings.Contains(conversationID, admin) {
			return true
		}
	}
	return false
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Sender       Sender
	Responder    Responder
	Availability AvailabilityChecker
	Groups       GroupLister
	Monitor      MonitorRunner
}

// Orchestrator routes every transport event to the right conversation and
// serializes all handling for one conversation behind its lock.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	timers  *timers.Registry
	tracker *Tracker
	logger  *slog.Logger

	policyMu sync.RWMutex
	policy   AccessPolicy

	convMu        sync.Mutex
	conversations map[string]*Conversation
}

// New creates an Orchestrator.
func New(cfg Config, policy AccessPolicy, deps Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.AttendantTimeout == 0 {
		cfg.AttendantTimeout = 20 * time.Minute
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = time.Second
	}
	return &Orchestrator{
		cfg:           cfg,
		deps:          deps,
		timers:        timers.New(logger),
		tracker:       NewTracker(cfg.AttributionTTL),
		logger:        logger.With("component", "session"),
		conversations: make(map[string]*Conversation),
	}
}

// UpdatePolicy swaps the access policy. Called by the config watcher.
func (o *Orchestrator) UpdatePolicy(policy AccessPolicy) {
	o.policyMu.Lock()
	o.policy = policy
	o.policyMu.Unlock()
}

func (o *Orchestrator) currentPolicy() AccessPolicy {
	o.policyMu.RLock()
	defer o.policyMu.RUnlock()
	return o.policy
}

// Run consumes transport events until the context ends or the channel closes.
// Each event is handled on its own goroutine; per-conversation ordering is
// enforced by the conversation lock, not by the channel.
func (o *Orchestrator) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			o.timers.Stop()
			return
		case ev, ok := <-events:
			if !ok {
				o.timers.Stop()
				return
			}
			switch e := ev.(type) {
			case MessageEvent:
				go o.HandleMessage(ctx, e)
			case ComposingEvent:
				go o.HandleComposing(ctx, e)
			case EchoEvent:
				go o.HandleOutbound(ctx, e)
			}
		}
	}
}

// HandleMessage processes one inbound text message end to end.
func (o *Orchestrator) HandleMessage(ctx context.Context, ev MessageEvent) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	policy := o.currentPolicy()

	// Operator commands bypass the state machine. Group chats are otherwise
	// ignored.
	if text == "!grupos" {
		o.handleGroupsCommand(ctx, ev.ConversationID)
		return
	}
	if text == "!check" {
		if ev.IsGroup && !policy.IsAdmin(ev.ConversationID) {
			return
		}
		o.handleCheckCommand(ctx, ev.ConversationID)
		return
	}
	if ev.IsGroup {
		return
	}

	if !policy.Permits(ev.ConversationID) {
		o.logger.Debug("conversation filtered", "conversation", ev.ConversationID)
		return
	}

	conv := o.conversation(ev.ConversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if conv.processing {
		o.logger.Debug("dropping event, external call in flight", "conversation", conv.ID)
		return
	}

	// A human holds the conversation: refresh their idle timer and stay quiet.
	if conv.AttendantOwned {
		o.timers.Reset(conv.ID, timers.ClassAttendant, o.cfg.AttendantTimeout, func() {
			o.attendantExpired(ctx, conv.ID)
		})
		return
	}

	switch strings.ToLower(text) {
	case "ativar bot":
		conv.BotEnabled = true
		o.send(ctx, conv.ID, msgBotEnabled)
		return
	case "desativar bot":
		conv.BotEnabled = false
		o.send(ctx, conv.ID, msgBotDisabled)
		return
	}

	if !conv.BotEnabled {
		return
	}

	o.dispatch(ctx, conv, ev.Text)

	// Reaching attendant ownership swaps the idle timer for the attendant
	// one; dispatch already armed it via the takeover path.
	if !conv.AttendantOwned {
		o.timers.Reset(conv.ID, timers.ClassIdle, o.cfg.IdleTimeout, func() {
			o.idleExpired(ctx, conv.ID)
		})
	}
}

// dispatch runs the state machine for one inbound text. Caller holds conv.mu.
func (o *Orchestrator) dispatch(ctx context.Context, conv *Conversation, text string) {
	switch conv.State {
	case StateInitial:
		o.handleInitial(ctx, conv, text)
	case StateAwaitingDate:
		o.handleAwaitingDate(ctx, conv, text)
	case StateInfoMenu:
		o.handleInfoMenu(ctx, conv, text)
	case StateInfoLazerMenu:
		o.handleInfoLazer(ctx, conv, text)
	case StatePriceFollowUp:
		o.handlePriceFollowUp(ctx, conv, text)
	default:
		// First contact: greet with the menu instead of interpreting the text.
		conv.State = StateInitial
		o.send(ctx, conv.ID, msgMainMenu)
	}
}

// conversation returns the record for an ID, creating it lazily. New
// conversations start bot-enabled with no recorded state.
func (o *Orchestrator) conversation(id string) *Conversation {
	o.convMu.Lock()
	defer o.convMu.Unlock()

	conv, ok := o.conversations[id]
	if !ok {
		conv = &Conversation{ID: id, BotEnabled: true}
		o.conversations[id] = conv
	}
	return conv
}

// send delivers text and records the resulting message ID as self-authored.
// Send failures are logged and swallowed; the user can resend.
func (o *Orchestrator) send(ctx context.Context, conversationID, text string) {
	messageID, err := o.deps.Sender.SendText(ctx, conversationID, text)
	if err != nil {
		o.logger.Error("send failed", "conversation", conversationID, "error", err)
		return
	}
	o.tracker.Record(messageID)
}

// idleExpired runs when a bot-owned conversation has been quiet too long.
func (o *Orchestrator) idleExpired(ctx context.Context, conversationID string) {
	conv := o.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if conv.AttendantOwned {
		return
	}
	o.logger.Info("conversation idle, closing", "conversation", conversationID)
	o.send(ctx, conversationID, msgStillThere)
	o.send(ctx, conversationID, msgMainMenu)
	conv.State = StateInitial
}

// attendantExpired runs when an attendant has been quiet too long. The
// conversation returns to automation without notifying the remote party.
func (o *Orchestrator) attendantExpired(ctx context.Context, conversationID string) {
	conv := o.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	if !conv.AttendantOwned {
		return
	}
	conv.AttendantOwned = false
	conv.State = StateInitial
	o.logger.Info("attendant idle, conversation released", "conversation", conversationID)
}

// handleGroupsCommand replies with every group the account participates in.
func (o *Orchestrator) handleGroupsCommand(ctx context.Context, conversationID string) {
	if o.deps.Groups == nil {
		return
	}
	groups, err := o.deps.Groups.ListGroups(ctx)
	if err != nil {
		o.logger.Error("group listing failed", "error", err)
		return
	}
	if len(groups) == 0 {
		o.send(ctx, conversationID, msgNoGroups)
		return
	}

	var b strings.Builder
	b.WriteString("*Grupos:*\n\n")
	for _, g := range groups {
		b.WriteString("- " + g.Name + " (" + g.ID + ")\n")
	}
	o.send(ctx, conversationID, b.String())
}

// handleCheckCommand triggers an immediate reservation alert pass.
func (o *Orchestrator) handleCheckCommand(ctx context.Context, conversationID string) {
	if o.deps.Monitor == nil {
		return
	}
	o.send(ctx, conversationID, msgCheckingReservations)
	if err := o.deps.Monitor.RunCheck(ctx); err != nil {
		o.logger.Error("manual reservation check failed", "error", err)
	}
}

// Counts reports how many conversations exist and how many a human holds.
// Used by the serve loop's periodic status log.
func (o *Orchestrator) Counts() (total, attendantOwned int) {
	o.convMu.Lock()
	convs := make([]*Conversation, 0, len(o.conversations))
	for _, conv := range o.conversations {
		convs = append(convs, conv)
	}
	o.convMu.Unlock()

	for _, conv := range convs {
		conv.mu.Lock()
		if conv.AttendantOwned {
			attendantOwned++
		}
		conv.mu.Unlock()
	}
	return len(convs), attendantOwned
}
