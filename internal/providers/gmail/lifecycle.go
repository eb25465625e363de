package gmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
)

// watchFallbackTTL applies when users.watch omits an expiration. Google
// documents watches as lasting seven days; renewing a day early keeps a
// margin.
const watchFallbackTTL = 6 * 24 * time.Hour

// Lifecycle manages Gmail watches and the Pub/Sub plumbing they publish
// into.
type Lifecycle struct {
	BaseURL string

	client      httpx.Doer
	retry       *httpx.RetryConfig
	provisioner TopicProvisioner
	topicID     string
}

// NewLifecycle builds a lifecycle on the given HTTP client and Pub/Sub
// provisioner. An empty topicID uses the default shared topic.
func NewLifecycle(client *http.Client, provisioner TopicProvisioner, topicID string) *Lifecycle {
	if client == nil {
		client = httpx.NewClient()
	}
	if topicID == "" {
		topicID = defaultTopicID
	}
	return &Lifecycle{
		BaseURL:     defaultBaseURL,
		client:      client,
		retry:       httpx.DefaultRetryConfig(),
		provisioner: provisioner,
		topicID:     topicID,
	}
}

func (l *Lifecycle) callGmail(ctx context.Context, method, path, token string, body interface{}, out interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return apperrors.InternalError("failed to encode gmail request", err)
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
		return apperrors.SubscriptionError("gmail api request failed: "+path, "api_failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.SubscriptionError(
			fmt.Sprintf("gmail refused %s (status %d)", path, resp.StatusCode), "api_failed")
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.SubscriptionError("unreadable gmail response: "+path, "api_failed")
		}
	}
	return nil
}

// ValidateCredentials fetches the user's profile with the OAuth token.
func (l *Lifecycle) ValidateCredentials(ctx context.Context, creds trigger.Credentials) error {
	if creds.Type != trigger.CredentialOAuth || creds.AccessToken == "" {
		return apperrors.ValidationError("gmail requires an OAuth access token credential")
	}
	var profile struct {
		EmailAddress string `json:"emailAddress"`
	}
	return l.callGmail(ctx, http.MethodGet, "/gmail/v1/users/me/profile", creds.AccessToken, nil, &profile)
}

type watchResponse struct {
	HistoryID  string `json:"historyId"`
	Expiration string `json:"expiration"`
}

func (w watchResponse) expiresAt(now time.Time) int64 {
	if ms, err := strconv.ParseInt(w.Expiration, 10, 64); err == nil && ms > 0 {
		return ms / 1000
	}
	return now.Add(watchFallbackTTL).Unix()
}

func (l *Lifecycle) watch(ctx context.Context, token, topicName string, labelIDs []string) (*watchResponse, error) {
	body := map[string]interface{}{"topicName": topicName}
	if len(labelIDs) > 0 {
		body["labelIds"] = labelIDs
	}
	var resp watchResponse
	if err := l.callGmail(ctx, http.MethodPost, "/gmail/v1/users/me/watch", token, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func labelIDsParam(parameters map[string]interface{}) []string {
	raw, _ := parameters["label_ids"].(string)
	if raw == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// CreateSubscription provisions the Pub/Sub topic and push subscription,
// then starts the Gmail watch. The provider call order means a watch is
// never started against missing plumbing; any failure surfaces before a
// subscription exists.
func (l *Lifecycle) CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds trigger.Credentials) (*trigger.Subscription, error) {
	if err := l.ValidateCredentials(ctx, creds); err != nil {
		return nil, err
	}
	if l.provisioner == nil {
		return nil, apperrors.ConfigError("gmail provider has no pub/sub provisioner configured")
	}

	subID := uuid.NewString()
	pushSubID := "gmail-" + subID
	auth := pushAuthParam(parameters, endpoint)

	topicName, err := l.provisioner.EnsureTopic(ctx, l.topicID)
	if err != nil {
		return nil, err
	}
	if err := l.provisioner.EnsurePushSubscription(ctx, l.topicID, pushSubID, endpoint, auth); err != nil {
		return nil, err
	}

	watch, err := l.watch(ctx, creds.AccessToken, topicName, labelIDsParam(parameters))
	if err != nil {
		// Unwind the push subscription so a failed create leaves nothing
		// behind.
		if cleanupErr := l.provisioner.RemovePushSubscription(ctx, pushSubID); cleanupErr != nil {
			logging.Warn("failed to unwind push subscription after watch failure",
				logging.Field{Key: "subscription", Value: pushSubID},
				logging.Field{Key: "error", Value: cleanupErr.Error()})
		}
		return nil, err
	}

	properties := map[string]string{
		"access_token":      creds.AccessToken,
		"history_id":        watch.HistoryID,
		"topic_name":        topicName,
		"push_subscription": pushSubID,
	}
	// Record the push identity so the dispatcher demands a matching OIDC
	// bearer on every delivery.
	if auth.ServiceAccount != "" {
		properties["oidc_audience"] = auth.Audience
		properties["service_account"] = auth.ServiceAccount
	}

	return &trigger.Subscription{
		ID:         subID,
		Provider:   Provider,
		Endpoint:   endpoint,
		ExpiresAt:  watch.expiresAt(time.Now()),
		Parameters: parameters,
		Properties: properties,
	}, nil
}

// pushAuthParam reads the optional delivery-authentication parameters. The
// audience defaults to the webhook endpoint, matching what Pub/Sub puts in
// the minted token.
func pushAuthParam(parameters map[string]interface{}, endpoint string) PushAuth {
	serviceAccount, _ := parameters["service_account"].(string)
	if serviceAccount == "" {
		return PushAuth{}
	}
	audience, _ := parameters["oidc_audience"].(string)
	if audience == "" {
		audience = endpoint
	}
	return PushAuth{ServiceAccount: serviceAccount, Audience: audience}
}

// RefreshSubscription re-issues users.watch. The fresh watch starts a new
// history baseline, so the incremental position may move forward past
// undelivered changes; consumers tolerate that gap.
func (l *Lifecycle) RefreshSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.Subscription, error) {
	if creds.AccessToken == "" {
		return nil, apperrors.ValidationError("gmail requires an OAuth access token credential")
	}
	topicName := sub.Properties["topic_name"]
	if topicName == "" {
		return nil, apperrors.SubscriptionError("subscription is missing its topic name", "refresh_failed")
	}

	watch, err := l.watch(ctx, creds.AccessToken, topicName, labelIDsParam(sub.Parameters))
	if err != nil {
		return nil, err
	}

	refreshed := *sub
	refreshed.ExpiresAt = watch.expiresAt(time.Now())
	refreshed.Properties = make(map[string]string, len(sub.Properties))
	for k, v := range sub.Properties {
		refreshed.Properties[k] = v
	}
	refreshed.Properties["access_token"] = creds.AccessToken
	refreshed.Properties["history_id"] = watch.HistoryID
	return &refreshed, nil
}

// DeleteSubscription stops the watch and removes the Pub/Sub plumbing.
// Every step is best-effort; cleanup trouble is logged, never returned, so
// an unsubscribe always lands.
func (l *Lifecycle) DeleteSubscription(ctx context.Context, sub *trigger.Subscription, creds trigger.Credentials) (*trigger.UnsubscribeResult, error) {
	if creds.AccessToken != "" {
		if err := l.callGmail(ctx, http.MethodPost, "/gmail/v1/users/me/stop", creds.AccessToken, nil, nil); err != nil {
			logging.Warn("failed to stop gmail watch",
				logging.Field{Key: "subscription", Value: sub.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if l.provisioner != nil {
		if pushSubID := sub.Properties["push_subscription"]; pushSubID != "" {
			if err := l.provisioner.RemovePushSubscription(ctx, pushSubID); err != nil {
				logging.Warn("failed to remove push subscription",
					logging.Field{Key: "subscription", Value: pushSubID},
					logging.Field{Key: "error", Value: err.Error()})
			}
		}
		if err := l.provisioner.RemoveTopicIfUnused(ctx, l.topicID); err != nil {
			logging.Warn("failed to remove unused topic",
				logging.Field{Key: "topic", Value: l.topicID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	return &trigger.UnsubscribeResult{Success: true, Message: "watch stopped"}, nil
}

// FetchParameterOptions lists the mailbox's labels for the label_ids
// parameter.
func (l *Lifecycle) FetchParameterOptions(ctx context.Context, parameter string, creds trigger.Credentials) ([]trigger.ParameterOption, error) {
	if parameter != "label_ids" {
		return nil, apperrors.ValidationError("unknown dynamic parameter: " + parameter)
	}
	var result struct {
		Labels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := l.callGmail(ctx, http.MethodGet, "/gmail/v1/users/me/labels", creds.AccessToken, nil, &result); err != nil {
		return nil, err
	}

	options := make([]trigger.ParameterOption, 0, len(result.Labels))
	for _, label := range result.Labels {
		options = append(options, trigger.ParameterOption{Value: label.ID, Label: label.Name})
	}
	return options, nil
}
