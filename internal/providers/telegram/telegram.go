// Package telegram adapts Telegram Bot API webhooks: shared secret token
// verification, setWebhook/deleteWebhook lifecycle, and update projectors.
package telegram

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "telegram"

const (
	defaultBaseURL = "https://api.telegram.org"
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
)

// updateFields maps the top-level update field carrying the payload to its
// logical event. Telegram updates carry exactly one of these.
var updateFields = []string{
	"message",
	"edited_message",
	"channel_post",
	"callback_query",
	"inline_query",
	"my_chat_member",
}

// Register installs the Telegram dispatcher, lifecycle and projectors.
func Register(reg *trigger.Registry, client *http.Client) error {
	if err := reg.RegisterProvider(Provider, NewDispatcher(), NewLifecycle(client)); err != nil {
		return err
	}
	for event, projector := range projectors() {
		if err := reg.RegisterEvent(Provider, event, projector); err != nil {
			return err
		}
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
