// Package reservations reads booking data from the venue's reservation portal.
// The bot never writes reservations; it only answers availability questions
// and raises upcoming-booking alerts.
package reservations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the user-facing Brazilian date format.
const DateLayout = "02/01/2006"

// Conflict describes the booking that blocks a requested date.
type Conflict struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Name  string `json:"name"`
}

// AvailabilityResult is the portal's answer for a single date.
type AvailabilityResult struct {
	Available bool      `json:"available"`
	Conflict  *Conflict `json:"conflict,omitempty"`
}

// Reservation is one booking as reported by the portal.
type Reservation struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Start        string `json:"start"`
	End          string `json:"end"`
	CheckInTime  string `json:"check_in_time"`
	CheckOutTime string `json:"check_out_time"`
	Status       string `json:"status"`
}

// Config holds the portal client configuration.
type Config struct {
	// BaseURL is the reservation portal root, e.g. "https://portal.example.com".
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds a single portal call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 15 * time.Second,
	}
}

// Client talks to the reservation portal's read API.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a portal client from config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger.With("component", "reservations"),
	}
}

// CheckAvailability asks whether date (DD/MM/YYYY) is free. A conflict, when
// present, carries the blocking booking's date range.
func (c *Client) CheckAvailability(ctx context.Context, date string) (AvailabilityResult, error) {
	var result AvailabilityResult
	endpoint := c.baseURL + "/api/availability?date=" + url.QueryEscape(date)
	if err := c.getJSON(ctx, endpoint, &result); err != nil {
		return AvailabilityResult{}, fmt.Errorf("checking availability for %s: %w", date, err)
	}
	return result, nil
}

// ListReservations fetches every booking the portal knows about. The monitor
// filters for confirmed and date-relevant entries.
func (c *Client) ListReservations(ctx context.Context) ([]Reservation, error) {
	var result []Reservation
	if err := c.getJSON(ctx, c.baseURL+"/api/reservations", &result); err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling portal: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		summary := strings.TrimSpace(string(body))
		if len(summary) > 200 {
			summary = summary[:200]
		}
		return fmt.Errorf("portal status %d: %s", resp.StatusCode, summary)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
