// Package whatsapp – events.go converts whatsmeow events into session events
// and mirrors credential rotations into the credential store.
package whatsapp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chacaradapaz/atendebot/pkg/atendebot/credstore"
	"github.com/chacaradapaz/atendebot/pkg/atendebot/session"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.mau.fi/whatsmeow/util/keys"
	"google.golang.org/protobuf/proto"
)

// ErrDisconnected is returned when an operation requires a live connection.
var ErrDisconnected = errors.New("whatsapp: not connected")

// handleEvent is the whatsmeow event dispatcher.
func (c *Client) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		c.handleMessageEvt(evt)

	case *events.ChatPresence:
		c.handleChatPresence(evt)

	case *events.Connected:
		c.connected.Store(true)
		c.reconnectAttempts.Store(0)
		c.logger.Info("connected", "jid", c.clientJID())
		c.snapshotCredentials()

	case *events.Disconnected:
		c.logger.Warn("connection lost")
		c.connected.Store(false)
		if c.ctx.Err() == nil {
			go c.attemptReconnect()
		}

	case *events.StreamReplaced:
		c.connected.Store(false)
		c.logger.Error("stream replaced, another client connected with this session")

	case *events.PairSuccess:
		c.logger.Info("device paired", "jid", evt.ID, "platform", evt.Platform)
		c.snapshotCredentials()

	case *events.AppStateSyncComplete:
		c.handleAppStateSync(evt)

	case *events.LoggedOut:
		c.handleLoggedOut(evt)
	}
}

// handleMessageEvt converts an inbound or echoed message.
func (c *Client) handleMessageEvt(evt *events.Message) {
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	// Own messages (from this process or from an operator on another device)
	// feed the handoff arbitration, not the state machine.
	if evt.Info.IsFromMe {
		c.emit(session.EchoEvent{
			ConversationID: evt.Info.Chat.String(),
			MessageID:      string(evt.Info.ID),
			IsSelf:         true,
		})
		return
	}

	text := extractText(evt.Message)
	if text == "" {
		// Stickers, media without caption and the like are ignored.
		return
	}

	sender := evt.Info.PushName
	if sender == "" {
		sender = evt.Info.Sender.User
	}

	c.logger.Debug("message received", "from", sender, "conversation", evt.Info.Chat.String())
	c.emit(session.MessageEvent{
		ConversationID: evt.Info.Chat.String(),
		Text:           text,
		SenderName:     sender,
		IsGroup:        evt.Info.IsGroup,
	})
}

// handleChatPresence forwards the account's own typing indicator. The remote
// party's typing is irrelevant; only an operator typing from another device
// signals a takeover.
func (c *Client) handleChatPresence(evt *events.ChatPresence) {
	if !evt.IsFromMe || evt.State != types.ChatPresenceComposing {
		return
	}
	c.emit(session.ComposingEvent{
		ConversationID: evt.Chat.String(),
	})
}

// handleAppStateSync stores the synced app-state key under its own category
// so a restart can tell which collections were already synced.
func (c *Client) handleAppStateSync(evt *events.AppStateSyncComplete) {
	name := string(evt.Name)
	c.logger.Debug("app state synced", "name", name)

	err := c.creds.SetBulk(c.ctx, map[string]map[string]any{
		"app-state": {
			name: map[string]any{
				"name":      name,
				"synced_at": time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
	if err != nil {
		c.logger.Error("failed to record app state sync", "name", name, "error", err)
	}
}

// handleLoggedOut retires the stored identity so the next start pairs fresh.
func (c *Client) handleLoggedOut(evt *events.LoggedOut) {
	c.connected.Store(false)
	c.logger.Error("logged out", "reason", evt.Reason.String())

	if err := c.creds.Delete(c.ctx, credstore.CredsKey); err != nil {
		c.logger.Error("failed to delete stored credentials", "error", err)
	}
}

// snapshotCredentials mirrors the device's identity material into the
// credential store. Failures are logged; the whatsmeow session tables remain
// authoritative.
func (c *Client) snapshotCredentials() {
	if c.wa == nil || c.wa.Store == nil || c.wa.Store.ID == nil {
		return
	}
	s := c.wa.Store

	payload := map[string]any{
		"jid":             s.ID.String(),
		"registration_id": s.RegistrationID,
		"platform":        s.Platform,
		"rotated_at":      time.Now().UTC().Format(time.RFC3339),
	}
	if s.NoiseKey != nil {
		payload["noise_key"] = keyPairPayload(s.NoiseKey)
	}
	if s.IdentityKey != nil {
		payload["identity_key"] = keyPairPayload(s.IdentityKey)
	}
	if len(s.AdvSecretKey) > 0 {
		payload["adv_secret_key"] = s.AdvSecretKey
	}

	if err := c.creds.SaveCreds(c.ctx, payload); err != nil {
		c.logger.Error("failed to snapshot credentials", "error", err)
		return
	}
	c.logger.Debug("credentials snapshotted", "jid", s.ID.String())
}

func keyPairPayload(kp *keys.KeyPair) map[string]any {
	out := make(map[string]any, 2)
	if kp.Pub != nil {
		out["pub"] = kp.Pub[:]
	}
	if kp.Priv != nil {
		out["priv"] = kp.Priv[:]
	}
	return out
}

func (c *Client) clientJID() string {
	if c.wa != nil && c.wa.Store.ID != nil {
		return c.wa.Store.ID.String()
	}
	return ""
}

// extractText pulls the text body out of a message, caption included.
func extractText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if msg.Conversation != nil {
		return msg.GetConversation()
	}
	if ext := msg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	if img := msg.ImageMessage; img != nil {
		return img.GetCaption()
	}
	if vid := msg.VideoMessage; vid != nil {
		return vid.GetCaption()
	}
	return ""
}

// buildTextMessage wraps text in the wire message type.
func buildTextMessage(text string) *waE2E.Message {
	return &waE2E.Message{
		Conversation: proto.String(text),
	}
}

// parseJID converts a conversation ID to types.JID. Accepts full JIDs
// ("5511999999999@s.whatsapp.net", "1234-5678@g.us") and bare phone numbers.
func parseJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(s, "@") {
		return types.ParseJID(s)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", s)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}
