package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
)

// watchFallbackTTL applies when events.watch omits an expiration.
const watchFallbackTTL = 24 * time.Hour

// Lifecycle manages Google Calendar watch channels. Channels cannot be
// extended, so a refresh opens a replacement channel before stopping the
// expiring one.
type Lifecycle struct {
	BaseURL string

	events *EventsClient
	client httpx.Doer
	retry  *httpx.RetryConfig
}

// NewLifecycle builds a lifecycle on the given HTTP client.
func NewLifecycle(client *http.Client) *Lifecycle {
	if client == nil {
		client = httpx.NewClient()
	}
	return &Lifecycle{
		BaseURL: defaultBaseURL,
		events:  NewEventsClient(client),
		client:  client,
		retry:   httpx.DefaultRetryConfig(),
	}
}

func (l *Lifecycle) call(ctx context.Context, method, path, token string, body interface{}, out interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return apperrors.InternalError("failed to encode calendar request", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, l.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return apperrors.SubscriptionError("calendar api request failed: "+path, "api_failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.SubscriptionError(
			fmt.Sprintf("calendar refused %s (status %d)", path, resp.StatusCode), "api_failed")
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.SubscriptionError("unreadable calendar response: "+path, "api_failed")
		}
	}
	return nil
}

// ValidateCredentials lists a single calendar entry with the OAuth token.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if creds.Type != trigger.CredentialOAuth || creds.AccessToken == "" {
		return apperrors.ValidationError("google calendar requires an OAuth access token credential")
	}
	var listing struct {
		Kind string `json:"kind"`
	}
	return l.call(ctx, http.MethodGet, "/users/me/calendarList?maxResults=1", creds.AccessToken, nil, &listing)
}

type watchResponse struct {
	ResourceID  string `json:"resourceId"`
	ResourceURI string `json:"resourceUri"`
	Expiration  string `json:"expiration"`
}

func (w watchResponse) expiresAt(now time.Time) int64 {
	if ms, err := strconv.ParseInt(w.Expiration, 10, 64); err == nil && ms > 0 {
		return ms / 1000
	}
	return now.Add(watchFallbackTTL).Unix()
}

func (l *Lifecycle) watch(ctx context.Context, token, calendarID, endpoint, channelID, channelToken string) (*watchResponse, error) {
	body := map[string]interface{}{
		"id":      channelID,
		"type":    "webhook",
		"address": endpoint,
		"token":   channelToken,
	}
	var resp watchResponse
	path := "/calendars/" + url.PathEscape(calendarID) + "/events/watch"
	if err := l.call(ctx, http.MethodPost, path, token, body, &resp); err != nil {
		return nil, err
	}
	if resp.ResourceID == "" {
		return nil, apperrors.SubscriptionError("calendar watch response missing resourceId", "watch_failed")
	}
	return &resp, nil
}

// openChannel starts a watch with fresh channel credentials and captures
// the sync baseline the dispatcher seeds its checkpoint from.
func (l *Lifecycle) openChannel(ctx context.Context, token, calendarID, endpoint string) (map[string]string, int64, error) {
	channelToken, err := randomToken()
	if err != nil {
		return nil, 0, apperrors.InternalError("failed to generate channel token", err)
	}
	channelID := uuid.NewString()

	watch, err := l.watch(ctx, token, calendarID, endpoint, channelID, channelToken)
	if err != nil {
		return nil, 0, err
	}
	syncToken, err := l.events.BootstrapSyncToken(ctx, token, calendarID)
	if err != nil {
		return nil, 0, err
	}

	properties := map[string]string{
		"access_token":       token,
		"calendar_id":        calendarID,
		"channel_id":         channelID,
		"channel_token":      channelToken,
		"resource_id":        watch.ResourceID,
		"initial_sync_token": syncToken,
	}
	if watch.ResourceURI != "" {
		properties["resource_uri"] = watch.ResourceURI
	}
	return properties, watch.expiresAt(time.Now()), nil
}

// CreateSubscription starts a watch channel on the configured calendar.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	if err := l.ValidateCredentials(ctx, creds); err != nil {
		return nil, err
	}

	properties, expiresAt, err := l.openChannel(ctx, creds.AccessToken, calendarIDParam(parameters), endpoint)
	if err != nil {
		return nil, err
	}

	return &trigger.Subscription{
		ID:         uuid.NewString(),
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  expiresAt,
		Parameters: parameters,
		Properties: properties,
	}, nil
}

// RefreshSubscription swaps the watch channel: a replacement opens first,
// then the expiring one is stopped, so notifications never lapse. A stop
// that fails is logged; Google drops the old channel at its original
// expiry anyway.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	if creds.AccessToken == "" {
		return nil, apperrors.ValidationError("google calendar requires an OAuth access token credential")
	}
	calendarID := sub.Properties["calendar_id"]
	if calendarID == "" {
		calendarID = calendarIDParam(sub.Parameters)
	}

	properties, expiresAt, err := l.openChannel(ctx, creds.AccessToken, calendarID, sub.Endpoint)
	if err != nil {
		return nil, err
	}
	if err := l.stopChannel(ctx, creds.AccessToken, sub.Properties["channel_id"], sub.Properties["resource_id"]); err != nil {
		logging.Warn("failed to stop replaced calendar channel",
			logging.Field{Key: "subscription", Value: sub.ID},
			logging.Field{Key: "channel", Value: sub.Properties["channel_id"]},
			logging.Field{Key: "error", Value: err.Error()})
	}

	refreshed := *sub
	refreshed.ExpiresAt = expiresAt
	refreshed.Properties = properties
	return &refreshed, nil
}

func (l *Lifecycle) stopChannel(ctx context.Context, token, channelID, resourceID string) error {
	if channelID == "" || resourceID == "" {
		return apperrors.SubscriptionError("subscription is missing its channel identifiers", "stop_failed")
	}
	body := map[string]interface{}{"id": channelID, "resourceId": resourceID}
	return l.call(ctx, http.MethodPost, "/channels/stop", token, body, nil)
}

// DeleteSubscription stops the watch channel. Stop trouble is reported in
// the result, never as an error, so an unsubscribe always lands.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	if creds.AccessToken == "" {
		return &trigger.UnsubscribeResult{Success: false, Message: "missing access token for channel stop"}, nil
	}
	if err := l.stopChannel(ctx, creds.AccessToken, sub.Properties["channel_id"], sub.Properties["resource_id"]); err != nil {
		logging.Warn("failed to stop calendar channel",
			logging.Field{Key: "subscription", Value: sub.ID},
			logging.Field{Key: "error", Value: err.Error()})
		return &trigger.UnsubscribeResult{Success: false, Message: "failed to stop watch channel"}, nil
	}
	return &trigger.UnsubscribeResult{Success: true, Message: "watch channel stopped"}, nil
}

// FetchParameterOptions lists the account's calendars for the calendar_id
// parameter, with the primary calendar guaranteed to appear.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	if parameter != "calendar_id" {
		return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
	}

	var options []trigger.ParameterOption
	pageToken := ""
	for {
		path := "/users/me/calendarList?minAccessRole=reader"
		if pageToken != "" {
			path += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var listing struct {
			Items []struct {
				ID      string `json:"id"`
				Summary string `json:"summary"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := l.call(ctx, http.MethodGet, path, creds.AccessToken, nil, &listing); err != nil {
			return nil, err
		}
		for _, item := range listing.Items {
			label := item.Summary
			if label == "" {
				label = item.ID
			}
			options = append(options, trigger.ParameterOption{Value: item.ID, Label: label})
		}
		if pageToken = listing.NextPageToken; pageToken == "" {
			break
		}
	}

	for _, opt := range options {
		if opt.Value == "primary" {
			return options, nil
		}
	}
	return append([]trigger.ParameterOption{{Value: "primary", Label: "Primary Calendar"}}, options...), nil
}
