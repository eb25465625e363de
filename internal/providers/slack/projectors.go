package slack

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

// messageFilters: channel and user IDs are case-sensitive identifiers.
var messageFilters = []filter.Filter{
	{Name: "channel", Parameter: "channels", Path: "channel", CaseSensitive: true},
	{Name: "user", Parameter: "users", Path: "user", CaseSensitive: true},
}

func projectMessage(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(messageFilters, parameters, payload); err != nil {
		return nil, err
	}
	text := str(payload, "text")
	if contains, _ := parameters["text_contains"].(string); contains != "" {
		if !strings.Contains(strings.ToLower(text), strings.ToLower(contains)) {
			return nil, trigger.Ignore("text")
		}
	}
	return trigger.Variables{
		"channel":      str(payload, "channel"),
		"channel_type": str(payload, "channel_type"),
		"user":         str(payload, "user"),
		"text":         text,
		"ts":           str(payload, "ts"),
		"thread_ts":    str(payload, "thread_ts"),
	}, nil
}

var reactionFilters = []filter.Filter{
	{Name: "emoji", Parameter: "emojis", Path: "reaction"},
	{Name: "channel", Parameter: "channels", Path: "item.channel", CaseSensitive: true},
}

func projectReaction(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(reactionFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"reaction":   str(payload, "reaction"),
		"user":       str(payload, "user"),
		"item_user":  str(payload, "item_user"),
		"channel":    str(payload, "item.channel"),
		"message_ts": str(payload, "item.ts"),
	}, nil
}

var memberJoinedFilters = []filter.Filter{
	{Name: "channel", Parameter: "channels", Path: "channel", CaseSensitive: true},
}

func projectMemberJoined(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(memberJoinedFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"channel": str(payload, "channel"),
		"user":    str(payload, "user"),
		"inviter": str(payload, "inviter"),
	}, nil
}

func projectAppMention(ctx context.Context, payload, parameters map[string]interface{}) (trigger.Variables, error) {
	if err := filter.Apply(messageFilters, parameters, payload); err != nil {
		return nil, err
	}
	return trigger.Variables{
		"channel": str(payload, "channel"),
		"user":    str(payload, "user"),
		"text":    str(payload, "text"),
		"ts":      str(payload, "ts"),
	}, nil
}

func projectors() map[string]trigger.Projector {
	return map[string]trigger.Projector{
		"message_channels":      trigger.ProjectorFunc(projectMessage),
		"message_im":            trigger.ProjectorFunc(projectMessage),
		"message_groups":        trigger.ProjectorFunc(projectMessage),
		"message_mpim":          trigger.ProjectorFunc(projectMessage),
		"reaction_added":        trigger.ProjectorFunc(projectReaction),
		"reaction_removed":      trigger.ProjectorFunc(projectReaction),
		"member_joined_channel": trigger.ProjectorFunc(projectMemberJoined),
		"app_mention":           trigger.ProjectorFunc(projectAppMention),
	}
}
