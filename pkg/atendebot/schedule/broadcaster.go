// Package schedule delivers recurring broadcast messages (pricing reminders,
// seasonal promotions) to configured conversations on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Sender delivers broadcast messages.
type Sender interface {
	SendText(ctx context.Context, conversationID, text string) (string, error)
}

// Schedule is one recurring broadcast.
type Schedule struct {
	// ID identifies the schedule in logs. Assigned when empty.
	ID string `yaml:"id"`

	// Cron is a standard five-field cron expression.
	Cron string `yaml:"cron"`

	// Recipients are the conversation IDs to message.
	Recipients []string `yaml:"recipients"`

	// Message is the text to send.
	Message string `yaml:"message"`

	// Enabled gates the schedule without deleting it.
	Enabled bool `yaml:"enabled"`
}

// Broadcaster runs the configured schedules.
type Broadcaster struct {
	sender Sender
	cron   *cron.Cron
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster. Nothing runs until Start.
func NewBroadcaster(sender Sender, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		sender: sender,
		logger: logger.With("component", "schedule"),
	}
}

// Start registers every enabled schedule and begins running them. Schedules
// with invalid cron expressions are skipped with an error log rather than
// failing the whole set.
func (b *Broadcaster) Start(ctx context.Context, schedules []Schedule) error {
	b.cron = cron.New()

	registered := 0
	for _, s := range schedules {
		if !s.Enabled {
			continue
		}
		if s.ID == "" {
			s.ID = uuid.NewString()[:8]
		}
		sched := s
		_, err := b.cron.AddFunc(sched.Cron, func() {
			b.run(ctx, sched)
		})
		if err != nil {
			b.logger.Error("invalid broadcast schedule", "id", sched.ID, "cron", sched.Cron, "error", err)
			continue
		}
		registered++
	}

	b.cron.Start()
	b.logger.Info("broadcast schedules registered", "count", registered)
	return nil
}

// Stop halts the schedules. Pending runs complete.
func (b *Broadcaster) Stop() {
	if b.cron != nil {
		b.cron.Stop()
	}
}

func (b *Broadcaster) run(ctx context.Context, s Schedule) {
	log := b.logger.With("schedule_id", s.ID)
	for _, recipient := range s.Recipients {
		if _, err := b.sender.SendText(ctx, recipient, s.Message); err != nil {
			log.Error("broadcast send failed", "recipient", recipient, "error", err)
			continue
		}
		log.Debug("broadcast delivered", "recipient", recipient)
	}
}

// Validate checks every schedule's cron expression up front, for config
// loading feedback.
func Validate(schedules []Schedule) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for i, s := range schedules {
		if s.Cron == "" {
			return fmt.Errorf("schedule %d: missing cron expression", i)
		}
		if _, err := parser.Parse(s.Cron); err != nil {
			return fmt.Errorf("schedule %d (%s): %w", i, s.Cron, err)
		}
	}
	return nil
}
