package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// Lifecycle manages the bot's webhook through the Telegram Bot API. A bot
// has one webhook, so the subscription is the webhook.
type Lifecycle struct {
	BaseURL string
	client  httpx.Doer
	retry   *httpx.RetryConfig
}

// NewLifecycle builds a lifecycle on the given HTTP client. Pass nil for a
// default client.
func NewLifecycle(client *http.Client) *Lifecycle {
	if client == nil {
		client = httpx.NewClient()
	}
	return &Lifecycle{
		BaseURL: defaultBaseURL,
		client:  client,
		retry:   httpx.DefaultRetryConfig(),
	}
}

type botResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (l *Lifecycle) callBot(ctx context.Context, botToken, method string, body interface{}) (*botResponse, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.InternalError("failed to encode bot request", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	url := l.BaseURL + "/bot" + botToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// setWebhook and deleteWebhook overwrite absolute state, so replays
	// are safe.
	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return nil, apperrors.SubscriptionError("telegram bot api request failed: "+method, "api_failed")
	}
	defer resp.Body.Close()

	var result botResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.SubscriptionError("unreadable bot api response: "+method, "api_failed")
	}
	return &result, nil
}

// ValidateCredentials round-trips getMe with the bot token.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if creds.APIKey == "" {
		return apperrors.ValidationError("telegram requires a bot token credential")
	}
	result, err := l.callBot(ctx, creds.APIKey, "getMe", nil)
	if err != nil {
		return err
	}
	if !result.OK {
		return apperrors.AuthError("telegram rejected the bot token: " + result.Description)
	}
	return nil
}

// CreateSubscription points the bot's webhook at the endpoint with a
// generated secret token, stored in properties for delivery verification.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	if creds.APIKey == "" {
		return nil, apperrors.ValidationError("telegram requires a bot token credential")
	}
	secret, err := randomToken()
	if err != nil {
		return nil, apperrors.InternalError("failed to generate secret token", err)
	}

	result, err := l.callBot(ctx, creds.APIKey, "setWebhook", map[string]interface{}{
		"url":          endpoint,
		"secret_token": secret,
	})
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return nil, apperrors.SubscriptionError(
			"telegram refused setWebhook: "+result.Description, "create_failed")
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  trigger.NeverExpires,
		Parameters: parameters,
		Properties: map[string]string{
			"secret_token": secret,
		},
	}, nil
}

// RefreshSubscription is a no-op: Telegram webhooks do not expire.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	return sub, nil
}

// DeleteSubscription removes the bot webhook. A webhook that was never set
// or is already gone counts as success.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	if creds.APIKey == "" {
		return &trigger.UnsubscribeResult{Success: true, Message: "no bot token; local subscription removed"}, nil
	}
	result, err := l.callBot(ctx, creds.APIKey, "deleteWebhook", nil)
	if err != nil {
		return nil, err
	}
	if !result.OK && !strings.Contains(strings.ToLower(result.Description), "not found") {
		return &trigger.UnsubscribeResult{
			Success: false,
			Message: "telegram refused deleteWebhook: " + result.Description,
		}, nil
	}
	return &trigger.UnsubscribeResult{Success: true, Message: "webhook removed"}, nil
}

// FetchParameterOptions has no dynamic parameters for Telegram.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
}
