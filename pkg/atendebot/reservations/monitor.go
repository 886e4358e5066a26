package reservations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Sender delivers alert messages to operator conversations.
type Sender interface {
	SendText(ctx context.Context, conversationID, text string) (string, error)
}

// MonitorConfig holds the daily alert pass configuration.
type MonitorConfig struct {
	// Enabled turns the daily pass on.
	Enabled bool `yaml:"enabled"`

	// CheckTime is the daily run time in HH:MM (local timezone).
	CheckTime string `yaml:"check_time"`

	// Recipients are the conversation IDs that receive alerts.
	Recipients []string `yaml:"recipients"`
}

// DefaultMonitorConfig returns a MonitorConfig with sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CheckTime: "09:00",
	}
}

// Monitor runs the daily reservation alert pass: active bookings and bookings
// starting within the next seven days are reported to the operator
// conversations.
type Monitor struct {
	client     *Client
	sender     Sender
	recipients []string
	checkTime  string
	cron       *cron.Cron
	logger     *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// NewMonitor creates a Monitor. It does not schedule anything until Start.
func NewMonitor(cfg MonitorConfig, client *Client, sender Sender, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	checkTime := cfg.CheckTime
	if checkTime == "" {
		checkTime = "09:00"
	}
	return &Monitor{
		client:     client,
		sender:     sender,
		recipients: cfg.Recipients,
		checkTime:  checkTime,
		logger:     logger.With("component", "monitor"),
		now:        time.Now,
	}
}

// Start schedules the daily pass. Returns an error when the configured check
// time cannot be parsed.
func (m *Monitor) Start(ctx context.Context) error {
	spec, err := cronSpecFor(m.checkTime)
	if err != nil {
		return err
	}

	m.cron = cron.New()
	_, err = m.cron.AddFunc(spec, func() {
		if err := m.RunCheck(ctx); err != nil {
			m.logger.Error("scheduled reservation check failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling reservation check: %w", err)
	}

	m.cron.Start()
	m.logger.Info("reservation monitor started", "check_time", m.checkTime)
	return nil
}

// Stop halts the schedule. Pending runs complete.
func (m *Monitor) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// RunCheck executes one alert pass immediately. Also invoked out of band by
// the !check operator command.
func (m *Monitor) RunCheck(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	log := m.logger.With("run_id", runID)

	reservations, err := m.client.ListReservations(ctx)
	if err != nil {
		return fmt.Errorf("reservation check %s: %w", runID, err)
	}

	alerts := buildAlerts(reservations, m.now())
	log.Info("reservation check complete", "reservations", len(reservations), "alerts", len(alerts))

	for _, recipient := range m.recipients {
		for _, alert := range alerts {
			if _, err := m.sender.SendText(ctx, recipient, alert); err != nil {
				log.Error("failed to deliver alert", "recipient", recipient, "error", err)
			}
		}
	}
	return nil
}

// AlertCount runs the detection step only, for the !check command's summary.
func (m *Monitor) AlertCount(ctx context.Context) (int, error) {
	reservations, err := m.client.ListReservations(ctx)
	if err != nil {
		return 0, err
	}
	return len(buildAlerts(reservations, m.now())), nil
}

// buildAlerts computes the alert messages for a point in time. Active bookings
// (today inside the stay) come first, then bookings starting within seven
// days.
func buildAlerts(reservations []Reservation, now time.Time) []string {
	today := truncateDay(now)
	horizon := today.AddDate(0, 0, 7)

	var alerts []string
	for _, r := range reservations {
		if r.Status != "reservado" {
			continue
		}
		start, err := parseDay(r.Start)
		if err != nil {
			continue
		}
		end, err := parseDay(r.End)
		if err != nil {
			continue
		}

		name := r.Name
		if name == "" {
			name = "Hóspede"
		}
		phone := r.Phone
		if phone == "" {
			phone = "Sem telefone"
		}
		checkIn := r.CheckInTime
		if checkIn == "" {
			checkIn = "08:00"
		}
		checkOut := r.CheckOutTime
		if checkOut == "" {
			checkOut = "18:00"
		}

		switch {
		case !today.Before(start) && !today.After(end):
			alerts = append(alerts,
				"📢 *Alerta de Reserva Ativa!* 🏠\n"+
					"👤 *"+name+"*\n"+
					"📞 "+phone+"\n"+
					"------------------------------\n"+
					"📅 *Entrada:* "+start.Format(DateLayout)+" às "+checkIn+"\n"+
					"📅 *Saída:* "+end.Format(DateLayout)+" às "+checkOut+"\n"+
					"------------------------------")
		case start.After(today) && !start.After(horizon):
			daysUntil := int(start.Sub(today).Hours() / 24)
			alerts = append(alerts,
				"📅 *Próxima Reserva Chegando!* \n"+
					"👤 *"+name+"*\n"+
					"📞 "+phone+"\n"+
					"------------------------------\n"+
					"📥 *Check-in:* "+start.Format(DateLayout)+" às "+checkIn+" (Daqui a "+strconv.Itoa(daysUntil)+" dias)\n"+
					"📤 *Check-out:* "+end.Format(DateLayout)+" às "+checkOut+"\n"+
					"------------------------------")
		}
	}
	return alerts
}

// parseDay accepts the portal's date formats, newest first.
func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// cronSpecFor converts HH:MM into a daily cron expression.
func cronSpecFor(checkTime string) (string, error) {
	parts := strings.SplitN(checkTime, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid check time %q, expected HH:MM", checkTime)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid check time %q, expected HH:MM", checkTime)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid check time %q, expected HH:MM", checkTime)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
