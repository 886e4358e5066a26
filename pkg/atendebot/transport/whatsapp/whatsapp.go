// Package whatsapp connects the bot to WhatsApp Web via whatsmeow and
// converts wire events into the session layer's event types. It also feeds
// credential rotations into the credential store so the session survives
// restarts.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/credstore"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/session"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds the WhatsApp connection configuration.
type Config struct {
	// DatabaseDSN is the SQLite connection string for the session tables
	// (prefixed whatsmeow_), usually the shared atendebot database.
	DatabaseDSN string `yaml:"database_dsn"`

	// DeviceName is shown in WhatsApp's linked devices list.
	DeviceName string `yaml:"device_name"`

	// TypingDelay, when positive, sends a composing indicator and waits this
	// long before each outbound message.
	TypingDelay time.Duration `yaml:"typing_delay"`

	// ReconnectBackoff is the initial backoff for reconnection attempts.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts caps reconnection tries (0 = unlimited).
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DeviceName:           "AtendeBot",
		ReconnectBackoff:     5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// Client is the WhatsApp transport.
type Client struct {
	cfg    Config
	wa     *whatsmeow.Client
	creds  *credstore.Store
	logger *slog.Logger

	// events carries converted transport events to the orchestrator.
	events chan session.Event

	connected         atomic.Bool
	eventsClosed      atomic.Bool
	reconnectGuard    atomic.Bool
	reconnectAttempts atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Client. Nothing connects until Connect.
func New(cfg Config, creds *credstore.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 5 * time.Second
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "AtendeBot"
	}
	return &Client{
		cfg:    cfg,
		creds:  creds,
		logger: logger.With("component", "whatsapp"),
		events: make(chan session.Event, 256),
	}
}

// Connect establishes the WhatsApp Web session. A failed read of the stored
// protocol identity is fatal; an absent one means a fresh pairing, and the QR
// code is logged for scanning.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	stored, err := c.creds.LoadCreds(c.ctx)
	if err != nil {
		return fmt.Errorf("loading stored credentials: %w", err)
	}
	if stored == nil {
		c.logger.Info("no stored credentials, fresh pairing required")
	} else {
		c.logger.Info("stored credentials found", "jid", stored["jid"])
	}

	container, err := sqlstore.New(c.ctx, "sqlite3", c.cfg.DatabaseDSN, waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}

	device, err := c.getDevice(c.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	store.SetOSInfo(c.cfg.DeviceName, [3]uint32{1, 0, 0})

	c.wa = whatsmeow.NewClient(device, waLog.Noop)
	c.wa.AddEventHandler(c.handleEvent)
	c.wa.EnableAutoReconnect = true
	c.wa.InitialAutoReconnect = true

	if c.wa.Store.ID == nil {
		// First login: run the QR flow in the background so the daemon can
		// finish starting.
		c.logger.Info("waiting for QR code scan")
		go func() {
			if err := c.loginWithQR(c.ctx); err != nil {
				c.logger.Warn("QR login pending", "error", err)
			}
		}()
		return nil
	}

	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	c.connected.Store(true)
	c.logger.Info("connected with existing session", "jid", c.wa.Store.ID.String())
	return nil
}

// Disconnect closes the connection and the event feed.
func (c *Client) Disconnect() {
	c.connected.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.wa != nil {
		c.wa.Disconnect()
	}
	if c.eventsClosed.CompareAndSwap(false, true) {
		close(c.events)
	}
	c.logger.Info("disconnected")
}

// Events returns the converted transport event feed.
func (c *Client) Events() <-chan session.Event {
	return c.events
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// SendText delivers a text message and returns the transport-assigned message
// ID. With TypingDelay configured, a composing indicator precedes the send.
func (c *Client) SendText(ctx context.Context, conversationID, text string) (string, error) {
	if !c.connected.Load() {
		return "", ErrDisconnected
	}

	jid, err := parseJID(conversationID)
	if err != nil {
		return "", fmt.Errorf("invalid conversation ID %q: %w", conversationID, err)
	}

	if c.cfg.TypingDelay > 0 {
		if err := c.wa.SendChatPresence(ctx, jid, types.ChatPresenceComposing, types.ChatPresenceMediaText); err == nil {
			select {
			case <-time.After(c.cfg.TypingDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			_ = c.wa.SendChatPresence(ctx, jid, types.ChatPresencePaused, types.ChatPresenceMediaText)
		}
	}

	resp, err := c.wa.SendMessage(ctx, jid, buildTextMessage(text))
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return string(resp.ID), nil
}

// ListGroups enumerates the account's group conversations for the !grupos
// command.
func (c *Client) ListGroups(ctx context.Context) ([]session.Group, error) {
	if !c.connected.Load() {
		return nil, ErrDisconnected
	}
	joined, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching groups: %w", err)
	}

	groups := make([]session.Group, 0, len(joined))
	for _, g := range joined {
		groups = append(groups, session.Group{
			ID:   g.JID.String(),
			Name: g.Name,
		})
	}
	return groups, nil
}

// getDevice retrieves the stored device or creates a fresh one.
func (c *Client) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// loginWithQR runs the QR pairing flow, logging each code for scanning.
func (c *Client) loginWithQR(ctx context.Context) error {
	qrChan, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("getting QR channel: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("connecting for QR: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-qrChan:
			if !ok {
				return fmt.Errorf("QR channel closed unexpectedly")
			}
			switch evt.Event {
			case "code":
				c.logger.Info("QR code ready, scan with WhatsApp", "code", evt.Code)
			case "success":
				c.connected.Store(true)
				c.reconnectAttempts.Store(0)
				c.logger.Info("login successful")
				return nil
			case "timeout":
				c.logger.Warn("QR code expired, restart to retry")
				return fmt.Errorf("QR code timeout")
			default:
				if evt.Error != nil {
					return fmt.Errorf("QR login: %v", evt.Error)
				}
			}
		}
	}
}

// attemptReconnect retries the connection with linear backoff. Guarded so
// only one attempt loop runs at a time.
func (c *Client) attemptReconnect() {
	if !c.reconnectGuard.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnectGuard.Store(false)

	for {
		if c.ctx.Err() != nil {
			return
		}

		attempts := c.reconnectAttempts.Add(1)
		if c.cfg.MaxReconnectAttempts > 0 && attempts > int32(c.cfg.MaxReconnectAttempts) {
			c.logger.Error("max reconnect attempts reached", "attempts", attempts)
			return
		}

		backoff := min(c.cfg.ReconnectBackoff*time.Duration(attempts), 5*time.Minute)
		c.logger.Info("reconnecting", "attempt", attempts, "backoff", backoff)

		select {
		case <-time.After(backoff):
		case <-c.ctx.Done():
			return
		}

		if c.wa == nil {
			return
		}
		if c.wa.IsConnected() {
			c.wa.Disconnect()
			time.Sleep(100 * time.Millisecond)
		}
		if err := c.wa.Connect(); err != nil {
			c.logger.Warn("reconnect attempt failed", "attempt", attempts, "error", err)
			continue
		}
		return
	}
}

// emit forwards an event to the orchestrator, dropping it when the feed is
// full rather than blocking the whatsmeow event loop.
func (c *Client) emit(ev session.Event) {
	if c.eventsClosed.Load() {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event feed full, dropping event", "conversation", ev.Conversation())
	}
}
