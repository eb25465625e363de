package telegram

import (
	"context"
	"strings"

	"triggerhub/internal/trigger"
	"triggerhub/internal/trigger/filter"
)

func str(payload map[string]interface{}, path string) string {
	s, _ := filter.Lookup(payload, path).(string)
	return s
}

// chat type values compare case-insensitively ("private", "group", ...).
var messageFilters = []filter.Filter{
	{Name: "chat type", Parameter: "chat_types", Path: "message.chat.type"},
}

func projectMessage(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(messageFilters, parameters, payload); err != nil {
		return nil, err
	}
	text := str(payload, "message.text")
	if prefix, _ := parameters["text_prefix"].(string); prefix != "" {
		if !strings.HasPrefix(text, prefix) {
			return nil, trigger.Ignore("text prefix")
		}
	}
	return trigger.Variables{
		"message_id": filter.Lookup(payload, "message.message_id"),
		"chat_id":    filter.Lookup(payload, "message.chat.id"),
		"chat_type":  str(payload, "message.chat.type"),
		"from":       str(payload, "message.from.username"),
		"text":       text,
	}, nil
}

func projectEditedMessage(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	return trigger.Variables{
		"message_id": filter.Lookup(payload, "edited_message.message_id"),
		"chat_id":    filter.Lookup(payload, "edited_message.chat.id"),
		"from":       str(payload, "edited_message.from.username"),
		"text":       str(payload, "edited_message.text"),
	}, nil
}

func projectCallbackQuery(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	return trigger.Variables{
		"query_id": str(payload, "callback_query.id"),
		"from":     str(payload, "callback_query.from.username"),
		"data":     str(payload, "callback_query.data"),
		"chat_id":  filter.Lookup(payload, "callback_query.message.chat.id"),
	}, nil
}

func projectChannelPost(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	return trigger.Variables{
		"message_id": filter.Lookup(payload, "channel_post.message_id"),
		"chat_id":    filter.Lookup(payload, "channel_post.chat.id"),
		"title":      str(payload, "channel_post.chat.title"),
		"text":       str(payload, "channel_post.text"),
	}, nil
}

func projectors() map[string]trigger.Projector {
	return map[string]trigger.Projector{
		"message":        trigger.ProjectorFunc(projectMessage),
		"edited_message": trigger.ProjectorFunc(projectEditedMessage),
		"callback_query": trigger.ProjectorFunc(projectCallbackQuery),
		"channel_post":   trigger.ProjectorFunc(projectChannelPost),
	}
}
