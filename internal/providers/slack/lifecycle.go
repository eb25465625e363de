package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// Lifecycle manages Slack subscriptions. Slack apps configure their event
// subscriptions in the app console, so creation records local state only;
// the interesting work is credential validation and channel listing.
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

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (l *Lifecycle) callAPI(ctx context.Context, method string, form url.Values, creds trigger.Credentials, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.BaseURL+"/"+method,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	// Slack Web API reads are safe to retry; nothing here mutates.
	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return apperrors.SubscriptionError("slack api request failed: "+method, "api_failed")
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.SubscriptionError("unreadable slack api response: "+method, "api_failed")
	}
	return nil
}

// ValidateCredentials round-trips auth.test.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if creds.AccessToken == "" {
		return apperrors.ValidationError("slack requires an OAuth access token credential")
	}
	var result apiResponse
	if err := l.callAPI(ctx, "auth.test", url.Values{}, creds, &result); err != nil {
		return err
	}
	if !result.OK {
		return apperrors.AuthError("slack rejected the credential: " + result.Error)
	}
	return nil
}

// CreateSubscription validates the token and records the signing secret in
// properties so deliveries authenticate without re-reading parameters.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	secret, _ := parameters["signing_secret"].(string)
	if secret == "" {
		return nil, apperrors.ValidationError("parameter signing_secret is required")
	}
	if err := l.ValidateCredentials(ctx, creds); err != nil {
		return nil, err
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  trigger.NeverExpires,
		Parameters: parameters,
		Properties: map[string]string{
			"signing_secret": secret,
		},
	}, nil
}

// RefreshSubscription is a no-op: Slack subscriptions do not expire.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	return sub, nil
}

// DeleteSubscription succeeds locally; the event subscription itself lives
// in the Slack app configuration.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	return &trigger.UnsubscribeResult{
		Success: true,
		Message: "local subscription removed; disable the event subscription in the Slack app console",
	}, nil
}

// FetchParameterOptions lists channels, following pagination cursors until
// Slack returns an empty one.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	if parameter != "channel" {
		return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
	}

	var options []trigger.ParameterOption
	cursor := ""
	for {
		form := url.Values{"limit": {"200"}}
		if cursor != "" {
			form.Set("cursor", cursor)
		}

		var result struct {
			apiResponse
			Channels []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := l.callAPI(ctx, "conversations.list", form, creds, &result); err != nil {
			return nil, err
		}
		if !result.OK {
			return nil, apperrors.SubscriptionError(
				fmt.Sprintf("slack refused channel listing: %s", result.Error), "options_failed")
		}

		for _, ch := range result.Channels {
			options = append(options, trigger.ParameterOption{Value: ch.ID, Label: "#" + ch.Name})
		}
		cursor = result.ResponseMetadata.NextCursor
		if cursor == "" {
			return options, nil
		}
	}
}
