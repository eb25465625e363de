package slack

import (
	"context"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
	"triggerhub/internal/verify"
)

// Dispatcher authenticates and classifies inbound Slack Events API
// deliveries.
type Dispatcher struct{}

// NewDispatcher returns the Slack dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// DispatchEvent verifies the v0 signed string (replay window first), echoes
// url_verification challenges, suppresses Slack's timeout retries, and
// resolves event_callback payloads through the message and direct tables.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	secret := sub.Properties["signing_secret"]
	if secret == "" {
		return nil, apperrors.AuthError("subscription has no signing secret")
	}
	verifier := verify.HMACSignedString{
		Secret:          secret,
		SignatureHeader: signatureHeader,
		TimestampHeader: timestampHeader,
		Version:         signingVersion,
	}
	if err := verifier.Verify(req.Headers, req.Body); err != nil {
		return nil, err
	}

	payload, err := trigger.ParseJSONBody(req.Body)
	if err != nil {
		return nil, err
	}

	payloadType, _ := payload["type"].(string)
	if payloadType == "url_verification" {
		challenge, _ := payload["challenge"].(string)
		if challenge == "" {
			return nil, apperrors.MalformedPayloadError("url_verification without challenge token", nil)
		}
		return &trigger.EventDispatch{Response: trigger.ChallengeResponse(challenge)}, nil
	}

	// Slack redelivers on slow acks. The first delivery already dispatched,
	// so retries acknowledge without resolving events or touching state.
	if req.Headers.Get(retryHeader) != "" {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	if payloadType != "event_callback" {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	event, _ := payload["event"].(map[string]interface{})
	if event == nil {
		return nil, apperrors.MalformedPayloadError("event_callback without event object", nil)
	}

	return &trigger.EventDispatch{
		Events:   resolveEvent(event),
		Response: trigger.AckResponse(),
		Payload:  event,
	}, nil
}

func resolveEvent(event map[string]interface{}) []string {
	eventType, _ := event["type"].(string)
	if eventType == "message" {
		if subtype, _ := event["subtype"].(string); ignoredSubtypes[subtype] {
			return nil
		}
		channelType, _ := event["channel_type"].(string)
		if name, ok := messageChannelTypes[channelType]; ok {
			return []string{name}
		}
		return nil
	}
	if name, ok := directEvents[eventType]; ok {
		return []string{name}
	}
	return nil
}
