package dropbox

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// Lifecycle manages Dropbox subscriptions. The webhook itself is wired in
// the user's Dropbox App console, so creation records local state: the app
// secret for signature checks and, optionally, an access token that lets
// the dispatcher fetch concrete changes.
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

// ValidateCredentials probes get_current_account when a token is present.
// Manual mode works without credentials, so an empty credential passes.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if creds.AccessToken == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.BaseURL+"/2/users/get_current_account", strings.NewReader("null"))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return apperrors.SubscriptionError("dropbox api request failed: get_current_account", "api_failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.AuthError("dropbox rejected the access token")
	}
	return nil
}

// CreateSubscription records the app secret (and access token, when given)
// in properties so deliveries are self-sufficient.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	secret, _ := parameters["app_secret"].(string)
	if secret == "" {
		return nil, apperrors.ValidationError("parameter app_secret is required")
	}
	if err := l.ValidateCredentials(ctx, creds); err != nil {
		return nil, err
	}

	properties := map[string]string{"app_secret": secret}
	if creds.AccessToken != "" {
		properties["access_token"] = creds.AccessToken
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  trigger.NeverExpires,
		Parameters: parameters,
		Properties: properties,
	}, nil
}

// RefreshSubscription rotates the stored access token; Dropbox webhooks do
// not expire on their own.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	if creds.AccessToken == "" {
		return sub, nil
	}
	if err := l.ValidateCredentials(ctx, creds); err != nil {
		return nil, err
	}
	refreshed := *sub
	refreshed.Properties = make(map[string]string, len(sub.Properties))
	for k, v := range sub.Properties {
		refreshed.Properties[k] = v
	}
	refreshed.Properties["access_token"] = creds.AccessToken
	return &refreshed, nil
}

// DeleteSubscription succeeds locally; the webhook itself lives in the
// Dropbox App console.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	return &trigger.UnsubscribeResult{
		Success: true,
		Message: "local subscription removed; detach the webhook in the Dropbox App console",
	}, nil
}

// FetchParameterOptions has nothing to offer: the only parameter is the
// app secret the user types in.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
}
