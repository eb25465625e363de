package sns

import (
	"context"
	"encoding/json"

	"triggerhub/internal/trigger"
	"triggerhub/internal/trigger/filter"
)

var notificationFilters = []filter.Filter{
	{Name: "subject", Parameter: "subjects", Path: "Subject"},
}

func projectNotification(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(notificationFilters, parameters, payload); err != nil {
		return nil, err
	}

	message, _ := payload["Message"].(string)
	vars := trigger.Variables{
		"subject":    payload["Subject"],
		"message":    message,
		"topic_arn":  payload["TopicArn"],
		"message_id": payload["MessageId"],
		"timestamp":  payload["Timestamp"],
	}
	// JSON-bodied notifications decode for downstream field access; plain
	// text stays as-is.
	var structured map[string]interface{}
	if err := json.Unmarshal([]byte(message), &structured); err == nil {
		vars["message_json"] = structured
	}
	return vars, nil
}
