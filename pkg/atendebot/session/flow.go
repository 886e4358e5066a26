package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/ai"
)

// dateRE is the strict entry-date format. Calendar validity is the
// availability collaborator's concern; this only gates the retry loop.
var dateRE = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// freeFormExitWords return the user to the main menu from the AI fallback.
var freeFormExitWords = map[string]bool{
	"menu":   true,
	"voltar": true,
	"inicio": true,
	"sair":   true,
}

// handleInitial classifies free text at the main menu. Unmatched input goes
// to the AI fallback without changing the recorded state.
func (o *Orchestrator) handleInitial(ctx context.Context, conv *Conversation, text string) {
	msg := strings.ToLower(strings.TrimSpace(text))

	switch {
	case msg == "1" || strings.Contains(msg, "disponibilidade") || strings.Contains(msg, "reserva"):
		conv.State = StateAwaitingDate
		o.send(ctx, conv.ID, msgAskDate)

	case msg == "2" || strings.Contains(msg, "lazer"):
		conv.State = StateInfoMenu
		o.send(ctx, conv.ID, msgLeisureIntro)

	case msg == "3" || strings.Contains(msg, "atendente"):
		o.send(ctx, conv.ID, msgCallingAttendant)
		o.takeoverLocked(ctx, conv)

	default:
		o.handleFreeForm(ctx, conv, text)
	}
}

// handleInfoMenu handles the "want the full amenity list?" answer.
func (o *Orchestrator) handleInfoMenu(ctx context.Context, conv *Conversation, text string) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if msg == "1" || msg == "sim" {
		conv.State = StateInfoLazerMenu
		o.send(ctx, conv.ID, msgLeisureList)
		return
	}
	conv.State = StateInitial
	o.send(ctx, conv.ID, msgMainMenu)
}

// handleInfoLazer handles the "want to see prices?" answer after the amenity
// list.
func (o *Orchestrator) handleInfoLazer(ctx context.Context, conv *Conversation, text string) {
	msg := strings.ToLower(text)
	if strings.Contains(msg, "1") || strings.Contains(msg, "sim") {
		conv.State = StateInitial
		o.send(ctx, conv.ID, msgPriceOptions)
		return
	}
	conv.State = StateInitial
	o.send(ctx, conv.ID, msgMainMenu)
}

// handlePriceFollowUp handles the "book a date?" answer after the pricing
// pointer.
func (o *Orchestrator) handlePriceFollowUp(ctx context.Context, conv *Conversation, text string) {
	if strings.Contains(text, "1") {
		conv.State = StateAwaitingDate
		o.send(ctx, conv.ID, msgAskDateShort)
		return
	}
	conv.State = StateInitial
	o.send(ctx, conv.ID, msgMainMenu)
}

// handleAwaitingDate validates the entry date and runs the availability
// lookup. The conversation lock is released around the lookup with the
// processing guard set; the guard is always cleared before returning.
func (o *Orchestrator) handleAwaitingDate(ctx context.Context, conv *Conversation, text string) {
	date := strings.TrimSpace(text)
	if !dateRE.MatchString(date) {
		// Retry loop, not an error: stay in this state.
		o.send(ctx, conv.ID, msgBadDate)
		return
	}

	o.send(ctx, conv.ID, msgCheckingDate)

	conv.processing = true
	conv.mu.Unlock()
	result, err := o.deps.Availability.CheckAvailability(ctx, date)
	conv.mu.Lock()
	conv.processing = false

	switch {
	case err != nil:
		o.logger.Error("availability lookup failed", "conversation", conv.ID, "date", date, "error", err)
		o.send(ctx, conv.ID, msgDateLookupError)
	case result.Available:
		o.send(ctx, conv.ID, msgDateAvailable)
	case result.Conflict != nil:
		o.send(ctx, conv.ID, fmt.Sprintf(msgDateConflict, result.Conflict.Start, result.Conflict.End))
	default:
		o.send(ctx, conv.ID, msgDateLookupError)
	}

	// An attendant may have taken over while the lookup ran. The reply above
	// is still delivered, but ownership transfer wins: automation does not
	// resume.
	if !conv.AttendantOwned {
		conv.State = StateInitial
	}
}

// handleFreeForm is the AI fallback for unmatched input. Never stored as a
// state: the conversation's recorded state is unchanged unless the reply
// demands a handoff or a navigation keyword matched.
func (o *Orchestrator) handleFreeForm(ctx context.Context, conv *Conversation, text string) {
	msg := strings.ToLower(strings.TrimSpace(text))
	if freeFormExitWords[msg] {
		conv.State = StateInitial
		o.send(ctx, conv.ID, msgMainMenu)
		return
	}

	conv.processing = true
	conv.mu.Unlock()
	reply, err := o.deps.Responder.GenerateReply(ctx, text)
	conv.mu.Lock()
	conv.processing = false

	if err != nil {
		o.logger.Error("reply generation failed", "conversation", conv.ID, "error", err)
		switch {
		case errors.Is(err, ai.ErrRateLimited):
			o.send(ctx, conv.ID, msgAIRateLimited)
		case errors.Is(err, ai.ErrContentFiltered):
			o.send(ctx, conv.ID, msgAIFiltered)
		case errors.Is(err, ai.ErrUnavailable):
			o.send(ctx, conv.ID, msgAIUnavailable)
		default:
			o.send(ctx, conv.ID, msgAIConfused)
			o.send(ctx, conv.ID, msgMainMenu)
		}
		if !conv.AttendantOwned {
			conv.State = StateInitial
		}
		return
	}

	if strings.Contains(reply, ai.HandoffMarker) {
		o.send(ctx, conv.ID, msgHandoffByAI)
		o.takeoverLocked(ctx, conv)
		return
	}

	o.send(ctx, conv.ID, reply)
}
