package sns

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
)

// Dispatcher handles SNS HTTPS deliveries: it confirms new subscriptions by
// fetching the SubscribeURL and dispatches notifications.
type Dispatcher struct {
	client   httpx.Doer
	retry    *httpx.RetryConfig
	verifier *signatureVerifier

	// allowedURL is a test hook; nil means the Amazon HTTPS check.
	allowedURL func(*url.URL) bool
}

// NewDispatcher builds a dispatcher on the given HTTP client. Pass nil for
// a default client.
func NewDispatcher(client *http.Client) *Dispatcher {
	if client == nil {
		client = httpx.NewClient()
	}
	retry := httpx.DefaultRetryConfig()
	return &Dispatcher{
		client:   client,
		retry:    retry,
		verifier: newSignatureVerifier(client, retry),
	}
}

func (d *Dispatcher) urlAllowed(u *url.URL) bool {
	if d.allowedURL != nil {
		return d.allowedURL(u)
	}
	return amazonHTTPS(u)
}

func amazonHTTPS(u *url.URL) bool {
	return u.Scheme == "https" && strings.HasSuffix(u.Hostname(), ".amazonaws.com")
}

// DispatchEvent classifies the delivery by its SNS message type. A
// SubscriptionConfirmation is confirmed inline and acknowledged with zero
// events; a Notification dispatches; anything else acknowledges quietly.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	payload, err := trigger.ParseJSONBody(req.Body)
	if err != nil {
		return nil, err
	}

	messageType, _ := payload["Type"].(string)
	if messageType == "" {
		messageType = req.Headers.Get(messageTypeHeader)
	}

	// The signature covers the canonical field string, so a forged or
	// tampered message fails here before the topic check or any handshake.
	if err := d.verifier.Verify(ctx, messageType, payload, d.urlAllowed); err != nil {
		return nil, err
	}

	if topicArn := sub.Properties["topic_arn"]; topicArn != "" {
		if got, _ := payload["TopicArn"].(string); got != "" && got != topicArn {
			return nil, apperrors.AuthError("delivery from unexpected topic: " + got)
		}
	}

	switch messageType {
	case "SubscriptionConfirmation":
		if err := d.confirm(ctx, payload); err != nil {
			return nil, err
		}
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	case "Notification":
		return &trigger.EventDispatch{
			Events:   []string{"sns_notification"},
			Response: trigger.AckResponse(),
			Payload:  payload,
		}, nil
	default:
		logging.Debug("unhandled sns message type",
			logging.Field{Key: "type", Value: messageType})
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}
}

// confirm completes the subscription handshake by fetching the
// SubscribeURL. The URL must be an Amazon-hosted HTTPS endpoint; anything
// else is a forgery attempt.
func (d *Dispatcher) confirm(ctx context.Context, payload map[string]interface{}) error {
	raw, _ := payload["SubscribeURL"].(string)
	if raw == "" {
		return apperrors.MalformedPayloadError("confirmation without SubscribeURL", nil)
	}
	parsed, err := url.Parse(raw)
	if err != nil || !d.urlAllowed(parsed) {
		return apperrors.AuthError("refusing non-amazon SubscribeURL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return err
	}
	resp, err := httpx.DoIdempotent(ctx, d.client, req, d.retry)
	if err != nil {
		return apperrors.DispatchError("subscription confirmation fetch failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.DispatchError("subscription confirmation was refused")
	}
	logging.Info("sns subscription confirmed",
		logging.Field{Key: "topic", Value: payload["TopicArn"]})
	return nil
}
