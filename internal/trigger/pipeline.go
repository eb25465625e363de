package trigger

import (
	"context"
	"errors"
	"fmt"

	"triggerhub/internal/common/logging"
)

// EventBatch is one projected event ready for the host: the logical event
// name and the variables its projector produced.
type EventBatch struct {
	Event     string
	Variables Variables
}

// Dispatch runs the full inbound pipeline for one delivery: resolve the
// provider's dispatcher, let it authenticate and classify the request, then
// project each resolved event through its registered projector.
//
// Batches accumulate in an explicit slice scoped to this call. A projector
// ignore signal drops that event and continues; an unregistered event name
// is logged and skipped so forward-compatible pass-through names do not
// fail the delivery. The dispatcher's response is returned even when every
// event was ignored.
func Dispatch(ctx context.Context, reg *Registry, provider string, sub *Subscription, req *WebhookRequest) (*EventDispatch, []EventBatch, error) {
	dispatcher, err := reg.Dispatcher(provider)
	if err != nil {
		return nil, nil, err
	}

	dispatch, err := dispatcher.DispatchEvent(ctx, sub, req)
	if err != nil {
		return nil, nil, err
	}
	if dispatch == nil || dispatch.Response == nil {
		return nil, nil, fmt.Errorf("trigger: dispatcher for %s returned no response", provider)
	}

	batches := make([]EventBatch, 0, len(dispatch.Events))
	for _, event := range dispatch.Events {
		projector, err := reg.Projector(provider, event)
		if err != nil {
			if errors.Is(err, ErrEventNotRegistered) {
				logging.Warn("no projector for event, skipping",
					logging.Field{Key: "provider", Value: provider},
					logging.Field{Key: "event", Value: event})
				continue
			}
			return nil, nil, err
		}

		vars, err := projector.Project(ctx, dispatch.Payload, sub.Parameters)
		if err != nil {
			if IsIgnore(err) {
				logging.Debug("event filtered",
					logging.Field{Key: "provider", Value: provider},
					logging.Field{Key: "event", Value: event},
					logging.Field{Key: "reason", Value: err.Error()})
				continue
			}
			return nil, nil, err
		}
		batches = append(batches, EventBatch{Event: event, Variables: vars})
	}

	return dispatch, batches, nil
}
