package github

import (
	"context"
	"strings"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
	"triggerhub/internal/verify"
)

// Dispatcher authenticates and classifies inbound GitHub deliveries.
type Dispatcher struct{}

// NewDispatcher returns the GitHub dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// DispatchEvent verifies the body signature with the subscription's stored
// secret, unwraps the JSON or form envelope, short-circuits the ping
// handshake, and resolves logical event names from the delivery type and
// action.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	secret := sub.Properties["secret"]
	if secret == "" {
		return nil, apperrors.AuthError("subscription has no signing secret")
	}
	verifier := verify.HMACBody{
		Secret: secret,
		Header: signatureHeader,
		Prefix: signaturePrefix,
	}
	if err := verifier.Verify(req.Headers, req.Body); err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	var err error
	if strings.Contains(req.Headers.Get("Content-Type"), "application/x-www-form-urlencoded") {
		payload, err = trigger.ParseFormPayload(req.Body)
	} else {
		payload, err = trigger.ParseJSONBody(req.Body)
	}
	if err != nil {
		return nil, err
	}

	eventType := req.Headers.Get(eventHeader)
	if eventType == "" {
		return nil, apperrors.MalformedPayloadError("missing "+eventHeader+" header", nil)
	}
	if eventType == "ping" {
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	action, _ := payload["action"].(string)
	return &trigger.EventDispatch{
		Events:   eventTable.Resolve(eventType, action),
		Response: trigger.AckResponse(),
		Payload:  payload,
	}, nil
}
