package dropbox

import (
	"context"

	"triggerhub/internal/trigger"
)

// projectFileChanges flattens the delivery into the host-facing variables.
// Without an access token the change list is empty and the notified
// accounts are the only signal.
func projectFileChanges(ctx context.Context, payload map[string]interface{}, parameters map[string]interface{}) (trigger.Variables, error) {
	changes, _ := payload["changes"].([]interface{})
	accounts, _ := payload["accounts"].([]interface{})
	return trigger.Variables{
		"changes":      changes,
		"accounts":     accounts,
		"cursor_start": payload["cursor_before"],
		"cursor_end":   payload["cursor_after"],
		"received_at":  payload["received_at"],
	}, nil
}
