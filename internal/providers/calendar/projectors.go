package calendar

import (
	"context"

	"triggerhub/internal/trigger"
)

func projectChangeBatch(key string) trigger.ProjectorFunc {
	return func(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
		items, _ := payload[key].([]interface{})
		if len(items) == 0 {
			return nil, trigger.Ignore("empty change batch")
		}
		return trigger.Variables{
			"calendar_id":    payload["calendar_id"],
			"resource_state": payload["resource_state"],
			"channel_id":     payload["channel_id"],
			"sync_token":     payload["sync_token"],
			"events":         items,
			"count":          len(items),
		}, nil
	}
}

func projectors() map[string]trigger.Projector {
	return map[string]trigger.Projector{
		"calendar_event_created": projectChangeBatch("created"),
		"calendar_event_updated": projectChangeBatch("updated"),
		"calendar_event_deleted": projectChangeBatch("deleted"),
	}
}
