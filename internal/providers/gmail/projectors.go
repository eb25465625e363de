package gmail

import (
	"context"

	"triggerhub/internal/trigger"
	"triggerhub/internal/trigger/filter"
)

func messageLabels(message map[string]interface{}) []string {
	raw, _ := message["labelIds"].([]interface{})
	labels := make([]string, 0, len(raw))
	for _, l := range raw {
		if s, ok := l.(string); ok {
			labels = append(labels, s)
		}
	}
	return labels
}

// filterByLabels keeps messages sharing at least one label with the
// configured set. An empty configuration keeps everything.
func filterByLabels(messages []interface{}, configured string) []interface{} {
	wanted := filter.SplitValues(configured)
	if len(wanted) == 0 {
		return messages
	}
	var kept []interface{}
	for _, item := range messages {
		message, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		labels := messageLabels(message)
		for _, want := range wanted {
			matched := false
			for _, have := range labels {
				if want == have {
					kept = append(kept, item)
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}
	}
	return kept
}

func projectMessageBatch(key string) trigger.ProjectorFunc {
	return func(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
		messages, _ := payload[key].([]interface{})
		if configured, _ := parameters["label_ids"].(string); configured != "" && key == "messages_added" {
			messages = filterByLabels(messages, configured)
		}
		if len(messages) == 0 {
			return nil, trigger.Ignore("labels")
		}
		return trigger.Variables{
			"email":      payload["email"],
			"history_id": payload["history_id"],
			"messages":   messages,
			"count":      len(messages),
		}, nil
	}
}

func projectors() map[string]trigger.Projector {
	return map[string]trigger.Projector{
		"gmail_message_added":   projectMessageBatch("messages_added"),
		"gmail_message_deleted": projectMessageBatch("messages_deleted"),
		"gmail_label_added":     projectMessageBatch("labels_added"),
		"gmail_label_removed":   projectMessageBatch("labels_removed"),
	}
}
