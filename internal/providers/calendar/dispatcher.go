package calendar

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
)

// creationWindow bounds the created/updated gap below which an event
// counts as brand new. The API has no change-type field, so creation is
// inferred from the sequence number and the two timestamps.
const creationWindow = time.Second

// Dispatcher verifies channel notifications and recovers the actual
// calendar changes through the checkpointed sync-token fetch.
type Dispatcher struct {
	Events *EventsClient

	checkpoint *trigger.Checkpoint
}

// NewDispatcher builds a dispatcher on the given checkpoint and HTTP
// client.
func NewDispatcher(checkpoint *trigger.Checkpoint, client *http.Client) *Dispatcher {
	return &Dispatcher{
		Events:     NewEventsClient(client),
		checkpoint: checkpoint,
	}
}

// DispatchEvent authenticates the notification against the stored channel
// identity, then reconciles it against the persisted sync position:
//
//   - first delivery: seed the checkpoint from the watch-time sync token
//     (or a fresh full listing) and acknowledge with zero events;
//   - normal delivery: fetch changes since the stored token, advance the
//     checkpoint before returning, and emit one logical event per
//     non-empty change category;
//   - expired token: re-baseline with a full listing and acknowledge with
//     zero events.
//
// Because the checkpoint advances before the response is built,
// redeliveries of an already-processed notification find nothing new.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	channelID := strings.TrimSpace(req.Headers.Get("X-Goog-Channel-Id"))
	if expected := sub.Properties["channel_id"]; expected != "" && channelID != expected {
		return nil, apperrors.AuthError("notification names an unknown channel")
	}
	if expected := sub.Properties["channel_token"]; expected != "" &&
		strings.TrimSpace(req.Headers.Get("X-Goog-Channel-Token")) != expected {
		return nil, apperrors.AuthError("channel token verification failed")
	}

	token := sub.Properties["access_token"]
	if token == "" {
		return nil, apperrors.AuthError("subscription has no stored access token")
	}
	calendarID := sub.Properties["calendar_id"]
	if calendarID == "" {
		calendarID = calendarIDParam(sub.Parameters)
	}

	stored, ok, err := d.checkpoint.Load(ctx, Provider, sub.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		seed := sub.Properties["initial_sync_token"]
		if seed == "" {
			if seed, err = d.Events.BootstrapSyncToken(ctx, token, calendarID); err != nil {
				return nil, err
			}
		}
		if err := d.checkpoint.Save(ctx, Provider, sub.ID, seed); err != nil {
			return nil, err
		}
		logging.Info("calendar sync baseline established",
			logging.Field{Key: "subscription", Value: sub.ID},
			logging.Field{Key: "calendar", Value: calendarID})
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	resourceState := strings.ToLower(strings.TrimSpace(req.Headers.Get("X-Goog-Resource-State")))
	// The first notification after a watch starts carries resourceState
	// "sync"; nothing has changed yet.
	if resourceState == "sync" {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	items, next, err := d.Events.Changes(ctx, token, calendarID, stored)
	if err != nil {
		if errors.Is(err, trigger.ErrCursorInvalidated) {
			return d.rebaseline(ctx, sub, token, calendarID)
		}
		return nil, err
	}
	if err := d.checkpoint.Save(ctx, Provider, sub.ID, next); err != nil {
		return nil, err
	}

	includeCancelled := cancelledParam(sub.Parameters)
	var created, updated, deleted []interface{}
	for _, item := range items {
		change := classify(item)
		item["change_type"] = change
		switch change {
		case "deleted":
			if includeCancelled {
				deleted = append(deleted, item)
			}
		case "created":
			created = append(created, item)
		default:
			updated = append(updated, item)
		}
	}

	var events []string
	if len(created) > 0 {
		events = append(events, "calendar_event_created")
	}
	if len(updated) > 0 {
		events = append(events, "calendar_event_updated")
	}
	if len(deleted) > 0 {
		events = append(events, "calendar_event_deleted")
	}
	if len(events) == 0 {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	return &trigger.EventDispatch{
		Events:   events,
		Response: trigger.AckResponse(),
		Payload: map[string]interface{}{
			"calendar_id":    calendarID,
			"resource_state": resourceState,
			"resource_id":    strings.TrimSpace(req.Headers.Get("X-Goog-Resource-Id")),
			"channel_id":     channelID,
			"sync_token":     next,
			"created":        created,
			"updated":        updated,
			"deleted":        deleted,
		},
	}, nil
}

// rebaseline replaces an expired sync token with a fresh full-listing
// position. Changes between the expired token and the new baseline are
// skipped; Google documents a full resync as the only recovery.
func (d *Dispatcher) rebaseline(ctx context.Context, sub *trigger.Subscription, token, calendarID string) (*trigger.EventDispatch, error) {
	fresh, err := d.Events.BootstrapSyncToken(ctx, token, calendarID)
	if err != nil {
		return nil, err
	}
	if err := d.checkpoint.Save(ctx, Provider, sub.ID, fresh); err != nil {
		return nil, err
	}
	logging.Warn("calendar sync token expired, re-baselined",
		logging.Field{Key: "subscription", Value: sub.ID},
		logging.Field{Key: "calendar", Value: calendarID})
	return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
}

// classify maps a raw event to a change type. A cancelled status means
// deletion; otherwise an event whose sequence is still at most one and
// whose updated stamp trails its creation by under a second counts as
// new.
func classify(event map[string]interface{}) string {
	if status, _ := event["status"].(string); strings.EqualFold(status, "cancelled") {
		return "deleted"
	}
	if recentCreation(event) {
		return "created"
	}
	return "updated"
}

func recentCreation(event map[string]interface{}) bool {
	switch seq := event["sequence"].(type) {
	case float64:
		if seq > 1 {
			return false
		}
	case string:
		if n, err := strconv.Atoi(seq); err == nil && n > 1 {
			return false
		}
	}
	created, okCreated := parseStamp(event["created"])
	updated, okUpdated := parseStamp(event["updated"])
	if !okCreated || !okUpdated {
		return true
	}
	gap := updated.Sub(created)
	if gap < 0 {
		gap = -gap
	}
	return gap <= creationWindow
}

func parseStamp(value interface{}) (time.Time, bool) {
	s, _ := value.(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// cancelledParam defaults to emitting cancellations.
func cancelledParam(parameters map[string]interface{}) bool {
	switch v := parameters["include_cancelled"].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "false", "0", "no", "off":
			return false
		}
	}
	return true
}
