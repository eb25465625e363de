// Package slack adapts the Slack Events API: signed-string request
// verification with a replay window, retry-delivery suppression, the
// url_verification handshake, and message/reaction projectors.
package slack

import (
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "slack"

const (
	defaultBaseURL  = "https://slack.com/api"
	signatureHeader = "X-Slack-Signature"
	timestampHeader = "X-Slack-Request-Timestamp"
	retryHeader     = "X-Slack-Retry-Num"
	signingVersion  = "v0"
)

// directEvents maps non-message callback types 1:1.
var directEvents = map[string]string{
	"reaction_added":        "reaction_added",
	"reaction_removed":      "reaction_removed",
	"member_joined_channel": "member_joined_channel",
	"member_left_channel":   "member_left_channel",
	"app_mention":           "app_mention",
	"channel_created":       "channel_created",
}

// messageChannelTypes maps a message event's channel_type to its logical
// event. Unlisted channel types resolve to nothing.
var messageChannelTypes = map[string]string{
	"channel": "message_channels",
	"im":      "message_im",
	"group":   "message_groups",
	"mpim":    "message_mpim",
}

// ignoredSubtypes are message mutations that are not new speech and never
// dispatch.
var ignoredSubtypes = map[string]bool{
	"bot_message":     true,
	"message_changed": true,
	"message_deleted": true,
	"channel_join":    true,
	"channel_leave":   true,
}

// Register installs the Slack dispatcher, lifecycle and projectors.
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
