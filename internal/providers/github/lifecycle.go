package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// webhookTTL is the local renewal horizon for repo hooks. GitHub hooks do
// not expire server-side; the TTL drives the renewal scheduler's liveness
// check instead.
const webhookTTL = 30 * 24 * time.Hour

// Lifecycle manages repository webhooks through the GitHub REST API.
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

func token(creds trigger.Credentials) string {
	if creds.AccessToken != "" {
		return creds.AccessToken
	}
	return creds.APIKey
}

func (l *Lifecycle) newRequest(ctx context.Context, method, path string, body interface{}, creds trigger.Credentials) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, apperrors.InternalError("failed to encode request body", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, l.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token(creds))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func readError(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(data)
}

// ValidateCredentials checks the token with a GET /user round trip.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if token(creds) == "" {
		return apperrors.ValidationError("github requires an access token or API key credential")
	}
	req, err := l.newRequest(ctx, http.MethodGet, "/user", nil, creds)
	if err != nil {
		return err
	}
	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return apperrors.SubscriptionError("credential validation request failed", "validate_failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.AuthError(fmt.Sprintf("github rejected the credential (status %d)", resp.StatusCode)).
			WithExternalResponse(readError(resp))
	}
	return nil
}

// CreateSubscription registers a repository webhook with a generated
// signing secret. Nothing is persisted until the provider call succeeds,
// so failure leaves no half-created subscription behind.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	repo, _ := parameters["repository"].(string)
	if repo == "" {
		return nil, apperrors.ValidationError("parameter repository is required (owner/repo)")
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, apperrors.InternalError("failed to generate webhook secret", err)
	}

	body := map[string]interface{}{
		"name":   "web",
		"active": true,
		"events": []string{"*"},
		"config": map[string]string{
			"url":          endpoint,
			"content_type": "json",
			"secret":       secret,
		},
	}
	req, err := l.newRequest(ctx, http.MethodPost, "/repos/"+repo+"/hooks", body, creds)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, apperrors.SubscriptionError("webhook creation request failed", "create_failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, apperrors.SubscriptionError(
			fmt.Sprintf("github refused webhook creation (status %d)", resp.StatusCode), "create_failed").
			WithExternalResponse(readError(resp))
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, apperrors.SubscriptionError("unreadable webhook creation response", "create_failed")
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  time.Now().Add(webhookTTL).Unix(),
		Parameters: parameters,
		Properties: map[string]string{
			"webhook_id": fmt.Sprintf("%d", created.ID),
			"secret":     secret,
			"repository": repo,
		},
	}, nil
}

// RefreshSubscription confirms the hook still exists and extends the local
// renewal horizon.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	repo := sub.Properties["repository"]
	hookID := sub.Properties["webhook_id"]
	if repo == "" || hookID == "" {
		return nil, apperrors.SubscriptionError("subscription is missing repository or webhook_id", "refresh_failed")
	}

	req, err := l.newRequest(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/hooks/%s", repo, hookID), nil, creds)
	if err != nil {
		return nil, err
	}
	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return nil, apperrors.SubscriptionError("webhook refresh request failed", "refresh_failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		refreshed := *sub
		refreshed.ExpiresAt = time.Now().Add(webhookTTL).Unix()
		return &refreshed, nil
	case http.StatusNotFound:
		return nil, apperrors.SubscriptionError("webhook no longer exists on github", "hook_gone")
	default:
		return nil, apperrors.SubscriptionError(
			fmt.Sprintf("github refused webhook refresh (status %d)", resp.StatusCode), "refresh_failed").
			WithExternalResponse(readError(resp))
	}
}

// DeleteSubscription removes the repository webhook. A hook that is
// already gone counts as success.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	repo := sub.Properties["repository"]
	hookID := sub.Properties["webhook_id"]
	if repo == "" || hookID == "" {
		return &trigger.UnsubscribeResult{Success: true, Message: "no provider webhook recorded"}, nil
	}

	req, err := l.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/repos/%s/hooks/%s", repo, hookID), nil, creds)
	if err != nil {
		return nil, err
	}
	resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
	if err != nil {
		return nil, apperrors.SubscriptionError("webhook deletion request failed", "delete_failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return &trigger.UnsubscribeResult{Success: true, Message: "webhook removed"}, nil
	default:
		return &trigger.UnsubscribeResult{
			Success: false,
			Message: fmt.Sprintf("github refused webhook deletion (status %d)", resp.StatusCode),
		}, nil
	}
}

// FetchParameterOptions lists the repositories the credential can reach,
// walking every page before returning.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	if parameter != "repository" {
		return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
	}

	const perPage = 100
	var options []trigger.ParameterOption
	for page := 1; ; page++ {
		path := fmt.Sprintf("/user/repos?per_page=%d&page=%d", perPage, page)
		req, err := l.newRequest(ctx, http.MethodGet, path, nil, creds)
		if err != nil {
			return nil, err
		}
		resp, err := httpx.DoIdempotent(ctx, l.client, req, l.retry)
		if err != nil {
			return nil, apperrors.SubscriptionError("repository listing request failed", "options_failed")
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, apperrors.SubscriptionError(
				fmt.Sprintf("github refused repository listing (status %d)", resp.StatusCode), "options_failed")
		}

		var repos []struct {
			FullName string `json:"full_name"`
		}
		err = json.NewDecoder(resp.Body).Decode(&repos)
		resp.Body.Close()
		if err != nil {
			return nil, apperrors.SubscriptionError("unreadable repository listing response", "options_failed")
		}

		for _, r := range repos {
			options = append(options, trigger.ParameterOption{Value: r.FullName, Label: r.FullName})
		}
		if len(repos) < perPage {
			return options, nil
		}
	}
}
