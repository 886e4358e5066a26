package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/ai"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/reservations"
)

type sentMessage struct {
	To   string
	Text string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	nextID int
	err    error
}

func (f *fakeSender) SendText(_ context.Context, to, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	return fmt.Sprintf("msg-%d", f.nextID), nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeResponder struct {
	reply string
	err   error
}

func (f *fakeResponder) GenerateReply(context.Context, string) (string, error) {
	return f.reply, f.err
}

type fakeAvailability struct {
	result reservations.AvailabilityResult
	err    error
}

func (f *fakeAvailability) CheckAvailability(context.Context, string) (reservations.AvailabilityResult, error) {
	return f.result, f.err
}

type fakeGroups struct {
	groups []Group
}

func (f *fakeGroups) ListGroups(context.Context) ([]Group, error) {
	return f.groups, nil
}

type fakeMonitor struct {
	runs int
}

func (f *fakeMonitor) RunCheck(context.Context) error {
	f.runs++
	return nil
}

type testHarness struct {
	orch         *Orchestrator
	sender       *fakeSender
	responder    *fakeResponder
	availability *fakeAvailability
	groups       *fakeGroups
	monitor      *fakeMonitor
}

func newHarness(t *testing.T, cfg Config, policy AccessPolicy) *testHarness {
	t.Helper()

	h := &testHarness{
		sender:       &fakeSender{},
		responder:    &fakeResponder{reply: "resposta gerada"},
		availability: &fakeAvailability{result: reservations.AvailabilityResult{Available: true}},
		groups:       &fakeGroups{},
		monitor:      &fakeMonitor{},
	}
	h.orch = New(cfg, policy, Deps{
		Sender:       h.sender,
		Responder:    h.responder,
		Availability: h.availability,
		Groups:       h.groups,
		Monitor:      h.monitor,
	}, nil)
	t.Cleanup(h.orch.timers.Stop)
	return h
}

// say delivers one message synchronously.
func (h *testHarness) say(t *testing.T, conv, text string) {
	t.Helper()
	h.orch.HandleMessage(context.Background(), MessageEvent{
		ConversationID: conv,
		Text:           text,
	})
}

// record fetches the conversation state under its lock.
func (h *testHarness) record(conv string) (State, bool, bool) {
	c := h.orch.conversation(conv)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.State, c.BotEnabled, c.AttendantOwned
}

func (h *testHarness) checkLockstep(t *testing.T, conv string) {
	t.Helper()
	state, _, owned := h.record(conv)
	if (state == StateAttendantOwned) != owned {
		t.Errorf("lockstep violated: state=%q attendantOwned=%v", state, owned)
	}
}

const user = "5511988887777@s.whatsapp.net"

func TestFirstContactSendsMenu(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})

	h.say(t, user, "oi")

	if got := h.sender.lastText(); got != msgMainMenu {
		t.Errorf("expected main menu, got %q", got)
	}
	state, enabled, owned := h.record(user)
	if state != StateInitial || !enabled || owned {
		t.Errorf("unexpected record after greeting: state=%q enabled=%v owned=%v", state, enabled, owned)
	}
}

func TestAvailabilityFlow(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")

	t.Run("option 1 asks for a date", func(t *testing.T) {
		h.say(t, user, "1")
		if got := h.sender.lastText(); got != msgAskDate {
			t.Errorf("expected date prompt, got %q", got)
		}
		if state, _, _ := h.record(user); state != StateAwaitingDate {
			t.Errorf("expected awaiting_date, got %q", state)
		}
	})

	t.Run("malformed date stays in the retry loop", func(t *testing.T) {
		h.say(t, user, "abc")
		if got := h.sender.lastText(); got != msgBadDate {
			t.Errorf("expected format error, got %q", got)
		}
		if state, _, _ := h.record(user); state != StateAwaitingDate {
			t.Errorf("expected awaiting_date after bad input, got %q", state)
		}
	})

	t.Run("available date returns to initial", func(t *testing.T) {
		h.say(t, user, "10/12/2030")
		if got := h.sender.lastText(); got != msgDateAvailable {
			t.Errorf("expected availability confirmation, got %q", got)
		}
		if state, _, _ := h.record(user); state != StateInitial {
			t.Errorf("expected initial after lookup, got %q", state)
		}
	})

	t.Run("conflict reply carries both dates", func(t *testing.T) {
		h.availability.result = reservations.AvailabilityResult{
			Conflict: &reservations.Conflict{Start: "10/12/2030", End: "12/12/2030"},
		}
		h.say(t, user, "1")
		h.say(t, user, "10/12/2030")

		got := h.sender.lastText()
		if !strings.Contains(got, "10/12/2030") || !strings.Contains(got, "12/12/2030") {
			t.Errorf("conflict reply missing dates: %q", got)
		}
		if state, _, _ := h.record(user); state != StateInitial {
			t.Errorf("expected initial after conflict, got %q", state)
		}
	})

	t.Run("lookup failure still returns to initial", func(t *testing.T) {
		h.availability.err = errors.New("portal down")
		h.say(t, user, "1")
		h.say(t, user, "10/12/2030")

		if got := h.sender.lastText(); got != msgDateLookupError {
			t.Errorf("expected lookup error reply, got %q", got)
		}
		state, _, _ := h.record(user)
		if state != StateInitial {
			t.Errorf("expected initial after failure, got %q", state)
		}
		c := h.orch.conversation(user)
		c.mu.Lock()
		if c.processing {
			t.Error("processing guard left set after failure")
		}
		c.mu.Unlock()
	})
}

func TestInfoMenuFlow(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")

	h.say(t, user, "2")
	if got := h.sender.lastText(); got != msgLeisureIntro {
		t.Errorf("expected leisure intro, got %q", got)
	}
	if state, _, _ := h.record(user); state != StateInfoMenu {
		t.Errorf("expected info state, got %q", state)
	}

	h.say(t, user, "sim")
	if got := h.sender.lastText(); got != msgLeisureList {
		t.Errorf("expected amenity list, got %q", got)
	}
	if state, _, _ := h.record(user); state != StateInfoLazerMenu {
		t.Errorf("expected info_lazer state, got %q", state)
	}

	h.say(t, user, "1")
	if got := h.sender.lastText(); got != msgPriceOptions {
		t.Errorf("expected price pointer, got %q", got)
	}
	if state, _, _ := h.record(user); state != StateInitial {
		t.Errorf("expected initial after prices, got %q", state)
	}
}

func TestInfoMenuDecline(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")
	h.say(t, user, "2")

	h.say(t, user, "2")
	if got := h.sender.lastText(); got != msgMainMenu {
		t.Errorf("expected menu after decline, got %q", got)
	}
	if state, _, _ := h.record(user); state != StateInitial {
		t.Errorf("expected initial after decline, got %q", state)
	}
}

func TestAttendantRequest(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")

	h.say(t, user, "3")
	if got := h.sender.lastText(); got != msgCallingAttendant {
		t.Errorf("expected attendant acknowledgement, got %q", got)
	}
	state, _, owned := h.record(user)
	if state != StateAttendantOwned || !owned {
		t.Errorf("expected attendant ownership: state=%q owned=%v", state, owned)
	}
	h.checkLockstep(t, user)

	// While owned, the bot stays silent.
	before := h.sender.count()
	h.say(t, user, "alguém aí?")
	if h.sender.count() != before {
		t.Error("bot replied while attendant owned the conversation")
	}
}

func TestBotToggleCommands(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")

	h.say(t, user, "Desativar Bot")
	if got := h.sender.lastText(); got != msgBotDisabled {
		t.Errorf("expected disable confirmation, got %q", got)
	}
	if _, enabled, _ := h.record(user); enabled {
		t.Error("bot still enabled after desativar")
	}

	// Disabled conversations produce no replies.
	before := h.sender.count()
	h.say(t, user, "1")
	h.say(t, user, "menu")
	if h.sender.count() != before {
		t.Error("disabled bot replied")
	}

	// Reactivation works while disabled.
	h.say(t, user, "ativar bot")
	if got := h.sender.lastText(); got != msgBotEnabled {
		t.Errorf("expected enable confirmation, got %q", got)
	}
	h.say(t, user, "oi")
	if h.sender.count() == before+1 {
		t.Error("bot did not resume after ativar")
	}
}

func TestFreeFormAI(t *testing.T) {
	t.Run("reply relayed verbatim", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{})
		h.say(t, user, "oi")
		h.responder.reply = "A chácara comporta 50 pessoas."

		h.say(t, user, "quantas pessoas cabem?")
		if got := h.sender.lastText(); got != "A chácara comporta 50 pessoas." {
			t.Errorf("AI reply not relayed: %q", got)
		}
		if state, _, _ := h.record(user); state != StateInitial {
			t.Errorf("free-form should not change the recorded state, got %q", state)
		}
	})

	t.Run("sentinel triggers handoff", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{})
		h.say(t, user, "oi")
		h.responder.reply = "Claro! " + ai.HandoffMarker

		h.say(t, user, "quero falar com alguém de verdade")
		if got := h.sender.lastText(); got != msgHandoffByAI {
			t.Errorf("expected handoff message, got %q", got)
		}
		state, _, owned := h.record(user)
		if state != StateAttendantOwned || !owned {
			t.Errorf("sentinel should hand off: state=%q owned=%v", state, owned)
		}
	})

	t.Run("exit keyword returns to the menu", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{})
		h.say(t, user, "oi")

		h.say(t, user, "menu")
		if got := h.sender.lastText(); got != msgMainMenu {
			t.Errorf("expected menu, got %q", got)
		}
	})

	t.Run("error classes map to distinct apologies", func(t *testing.T) {
		cases := []struct {
			name string
			err  error
			want string
		}{
			{"rate limited", fmt.Errorf("status 429: %w", ai.ErrRateLimited), msgAIRateLimited},
			{"content filtered", fmt.Errorf("blocked: %w", ai.ErrContentFiltered), msgAIFiltered},
			{"unavailable", fmt.Errorf("status 503: %w", ai.ErrUnavailable), msgAIUnavailable},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				h := newHarness(t, DefaultConfig(), AccessPolicy{})
				h.say(t, user, "oi")
				h.responder.err = tc.err

				h.say(t, user, "pergunta livre")
				if got := h.sender.lastText(); got != tc.want {
					t.Errorf("expected %q, got %q", tc.want, got)
				}
				if state, _, _ := h.record(user); state != StateInitial {
					t.Errorf("expected initial after AI error, got %q", state)
				}
			})
		}
	})

	t.Run("unknown error falls back to the menu", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{})
		h.say(t, user, "oi")
		h.responder.err = errors.New("something odd")

		h.say(t, user, "pergunta livre")
		msgs := h.sender.messages()
		if len(msgs) < 2 {
			t.Fatalf("expected apology plus menu, got %v", msgs)
		}
		if msgs[len(msgs)-2].Text != msgAIConfused || msgs[len(msgs)-1].Text != msgMainMenu {
			t.Errorf("expected confused apology then menu, got %q then %q",
				msgs[len(msgs)-2].Text, msgs[len(msgs)-1].Text)
		}
	})
}

func TestIdleTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IdleTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg, AccessPolicy{})

	h.say(t, user, "oi")
	before := h.sender.count()

	time.Sleep(120 * time.Millisecond)

	msgs := h.sender.messages()
	if len(msgs) != before+2 {
		t.Fatalf("expected exactly one still-there + menu pair, got %d extra messages", len(msgs)-before)
	}
	if msgs[before].Text != msgStillThere || msgs[before+1].Text != msgMainMenu {
		t.Errorf("unexpected idle messages: %q, %q", msgs[before].Text, msgs[before+1].Text)
	}
	if state, _, _ := h.record(user); state != StateInitial {
		t.Errorf("expected initial after idle expiry, got %q", state)
	}
}

func TestAttendantTimerSilentRelease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AttendantTimeout = 30 * time.Millisecond
	h := newHarness(t, cfg, AccessPolicy{})

	h.say(t, user, "oi")
	h.say(t, user, "3")
	before := h.sender.count()

	time.Sleep(120 * time.Millisecond)

	if h.sender.count() != before {
		t.Error("attendant release should be silent")
	}
	state, _, owned := h.record(user)
	if owned || state != StateInitial {
		t.Errorf("expected silent release to initial: state=%q owned=%v", state, owned)
	}
	h.checkLockstep(t, user)
}

func TestEchoTakeover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Debounce = 5 * time.Millisecond
	ctx := context.Background()

	t.Run("unattributed echo flips ownership", func(t *testing.T) {
		h := newHarness(t, cfg, AccessPolicy{})
		h.say(t, user, "oi")

		h.orch.HandleOutbound(ctx, EchoEvent{
			ConversationID: user,
			MessageID:      "human-authored-id",
			IsSelf:         true,
		})

		state, _, owned := h.record(user)
		if !owned || state != StateAttendantOwned {
			t.Errorf("expected takeover: state=%q owned=%v", state, owned)
		}
		h.checkLockstep(t, user)
	})

	t.Run("own echo is ignored", func(t *testing.T) {
		h := newHarness(t, cfg, AccessPolicy{})
		h.say(t, user, "oi")

		// The greeting recorded msg-1 in the tracker.
		h.orch.HandleOutbound(ctx, EchoEvent{
			ConversationID: user,
			MessageID:      "msg-1",
			IsSelf:         true,
		})

		if _, _, owned := h.record(user); owned {
			t.Error("bot's own echo caused a takeover")
		}
	})
}

func TestComposingTakeover(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})
	h.say(t, user, "oi")

	h.orch.HandleComposing(context.Background(), ComposingEvent{ConversationID: user})

	state, _, owned := h.record(user)
	if !owned || state != StateAttendantOwned {
		t.Errorf("typing indicator should flip ownership: state=%q owned=%v", state, owned)
	}
	h.checkLockstep(t, user)
}

func TestAccessPolicy(t *testing.T) {
	t.Run("test mode drops unlisted conversations", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{
			TestMode: true,
			Allowed:  []string{"5511941093985"},
		})

		h.say(t, user, "oi")
		if h.sender.count() != 0 {
			t.Error("unlisted conversation was answered in test mode")
		}

		h.say(t, "5511941093985@s.whatsapp.net", "oi")
		if h.sender.count() != 1 {
			t.Error("allow-listed conversation was not answered")
		}
	})

	t.Run("block list always drops", func(t *testing.T) {
		h := newHarness(t, DefaultConfig(), AccessPolicy{
			Blocked: []string{"5511988887777"},
		})
		h.say(t, user, "oi")
		if h.sender.count() != 0 {
			t.Error("blocked conversation was answered")
		}
	})
}

func TestGroupHandling(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})

	t.Run("plain group messages are dropped", func(t *testing.T) {
		h.orch.HandleMessage(context.Background(), MessageEvent{
			ConversationID: "123-456@g.us",
			Text:           "oi",
			IsGroup:        true,
		})
		if h.sender.count() != 0 {
			t.Error("group message was answered")
		}
	})

	t.Run("grupos command lists groups", func(t *testing.T) {
		h.groups.groups = []Group{
			{ID: "123-456@g.us", Name: "Família"},
			{ID: "789-012@g.us", Name: "Obras"},
		}
		h.orch.HandleMessage(context.Background(), MessageEvent{
			ConversationID: "123-456@g.us",
			Text:           "!grupos",
			IsGroup:        true,
		})
		got := h.sender.lastText()
		if !strings.Contains(got, "Família") || !strings.Contains(got, "789-012@g.us") {
			t.Errorf("group listing incomplete: %q", got)
		}
	})

	t.Run("check command runs the monitor", func(t *testing.T) {
		h.say(t, user, "!check")
		if h.monitor.runs != 1 {
			t.Errorf("expected one monitor run, got %d", h.monitor.runs)
		}
		if h.monitor.runs > 0 && !strings.Contains(h.sender.messages()[h.sender.count()-1].Text, "Verificando") {
			t.Errorf("expected checking acknowledgement, got %q", h.sender.lastText())
		}
	})

	t.Run("check command from a group requires admin", func(t *testing.T) {
		before := h.monitor.runs
		h.orch.HandleMessage(context.Background(), MessageEvent{
			ConversationID: "123-456@g.us",
			Text:           "!check",
			IsGroup:        true,
		})
		if h.monitor.runs != before {
			t.Error("non-admin group triggered the monitor")
		}
	})
}

func TestLockstepInvariantAcrossTransitions(t *testing.T) {
	h := newHarness(t, DefaultConfig(), AccessPolicy{})

	inputs := []string{
		"oi", "1", "abc", "10/12/2030", "2", "sim", "1",
		"pergunta qualquer", "menu", "desativar bot", "ativar bot", "3", "mais alguma coisa",
	}
	for _, in := range inputs {
		h.say(t, user, in)
		h.checkLockstep(t, user)
	}
}
