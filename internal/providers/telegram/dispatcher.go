package telegram

import (
	"context"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
	"triggerhub/internal/verify"
)

// Dispatcher authenticates and classifies inbound Telegram updates.
type Dispatcher struct{}

// NewDispatcher returns the Telegram dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// DispatchEvent checks the secret token header against the subscription's
// stored value and resolves the update by its single populated top-level
// field.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	secret := sub.Properties["secret_token"]
	if secret == "" {
		return nil, apperrors.AuthError("subscription has no secret token")
	}
	verifier := verify.SharedToken{Secret: secret, Header: secretHeader}
	if err := verifier.Verify(req.Headers, req.Body); err != nil {
		return nil, err
	}

	payload, err := trigger.ParseJSONBody(req.Body)
	if err != nil {
		return nil, err
	}

	var events []string
	for _, field := range updateFields {
		if _, ok := payload[field]; ok {
			events = append(events, field)
			break
		}
	}

	return &trigger.EventDispatch{
		Events:   events,
		Response: trigger.AckResponse(),
		Payload:  payload,
	}, nil
}
