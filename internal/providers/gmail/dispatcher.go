package gmail

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
	"triggerhub/internal/verify"
)

// Dispatcher unwraps Pub/Sub push notifications and recovers message
// deltas through the checkpointed history API.
type Dispatcher struct {
	History *HistoryClient

	checkpoint *trigger.Checkpoint
	// validator is a test hook; nil means Google-signed token validation.
	validator verify.TokenValidator
}

// NewDispatcher builds a dispatcher on the given checkpoint and HTTP
// client.
func NewDispatcher(checkpoint *trigger.Checkpoint, client *http.Client) *Dispatcher {
	return &Dispatcher{
		History:    NewHistoryClient(client),
		checkpoint: checkpoint,
	}
}

// DispatchEvent authenticates the push delivery, then reconciles the
// notification against the persisted history position:
//
//   - first delivery: record the notification's history ID as the baseline
//     and acknowledge with zero events;
//   - normal delivery: page history from the stored position, advance the
//     checkpoint before returning, and emit one logical event per non-empty
//     delta category;
//   - expired position: re-baseline at the notification's history ID and
//     acknowledge with zero events.
//
// Because the checkpoint advances before the response is built, Pub/Sub
// redeliveries of an already-processed notification find nothing new.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	if audience := sub.Properties["oidc_audience"]; audience != "" {
		verifier := verify.OIDC{
			Audience:      audience,
			Issuers:       []string{"accounts.google.com", "https://accounts.google.com"},
			ExpectedEmail: sub.Properties["service_account"],
			Validator:     d.validator,
		}
		if err := verifier.Verify(ctx, req.Headers); err != nil {
			return nil, err
		}
	}

	_, notification, err := trigger.ParsePubSubEnvelope(req.Body)
	if err != nil {
		return nil, err
	}
	email, _ := notification["emailAddress"].(string)
	notifiedID, err := historyID(notification)
	if err != nil {
		return nil, err
	}

	stored, ok, err := d.checkpoint.Load(ctx, Provider, sub.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := d.checkpoint.Save(ctx, Provider, sub.ID, notifiedID); err != nil {
			return nil, err
		}
		logging.Info("gmail history baseline established",
			logging.Field{Key: "subscription", Value: sub.ID},
			logging.Field{Key: "history_id", Value: notifiedID})
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	token := sub.Properties["access_token"]
	if token == "" {
		return nil, apperrors.AuthError("subscription has no stored access token")
	}

	delta, err := d.History.List(ctx, token, stored)
	if err != nil {
		if errors.Is(err, trigger.ErrCursorInvalidated) {
			if err := d.checkpoint.Save(ctx, Provider, sub.ID, notifiedID); err != nil {
				return nil, err
			}
			logging.Warn("gmail history position expired, re-baselined",
				logging.Field{Key: "subscription", Value: sub.ID},
				logging.Field{Key: "history_id", Value: notifiedID})
			return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
		}
		return nil, err
	}

	next := advanceCursor(stored, notifiedID, delta.LastHistoryID)
	if err := d.checkpoint.Save(ctx, Provider, sub.ID, next); err != nil {
		return nil, err
	}

	if delta.empty() {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	var events []string
	if len(delta.MessagesAdded) > 0 {
		events = append(events, "gmail_message_added")
	}
	if len(delta.MessagesDeleted) > 0 {
		events = append(events, "gmail_message_deleted")
	}
	if len(delta.LabelsAdded) > 0 {
		events = append(events, "gmail_label_added")
	}
	if len(delta.LabelsRemoved) > 0 {
		events = append(events, "gmail_label_removed")
	}

	return &trigger.EventDispatch{
		Events:   events,
		Response: trigger.AckResponse(),
		Payload: map[string]interface{}{
			"email":            email,
			"history_id":       next,
			"messages_added":   anySlice(delta.MessagesAdded),
			"messages_deleted": anySlice(delta.MessagesDeleted),
			"labels_added":     anySlice(delta.LabelsAdded),
			"labels_removed":   anySlice(delta.LabelsRemoved),
		},
	}, nil
}

// historyID normalizes the notification's history ID, which arrives as a
// JSON number or string depending on the publisher.
func historyID(notification map[string]interface{}) (string, error) {
	switch id := notification["historyId"].(type) {
	case float64:
		return strconv.FormatUint(uint64(id), 10), nil
	case string:
		if id != "" {
			return id, nil
		}
	}
	return "", apperrors.MalformedPayloadError("notification missing historyId", nil)
}

// advanceCursor picks the furthest known position so the cursor never moves
// backwards, even when history pages lag behind the notification.
func advanceCursor(stored, notified string, last uint64) string {
	best := parseID(stored)
	if n := parseID(notified); n > best {
		best = n
	}
	if last > best {
		best = last
	}
	return strconv.FormatUint(best, 10)
}

func parseID(s string) uint64 {
	id, _ := strconv.ParseUint(s, 10, 64)
	return id
}

func anySlice(items []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
