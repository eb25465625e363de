package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// EventsClient pages the events collection of the Calendar API.
type EventsClient struct {
	BaseURL string
	client  httpx.Doer
	retry   *httpx.RetryConfig
}

// NewEventsClient builds an events client on the given HTTP client. Pass
// nil for a default client.
func NewEventsClient(client *http.Client) *EventsClient {
	if client == nil {
		client = httpx.NewClient()
	}
	return &EventsClient{
		BaseURL: defaultBaseURL,
		client:  client,
		retry:   httpx.DefaultRetryConfig(),
	}
}

type eventsPage struct {
	Items         []map[string]interface{} `json:"items"`
	NextPageToken string                   `json:"nextPageToken"`
	NextSyncToken string                   `json:"nextSyncToken"`
}

func (e *EventsClient) page(ctx context.Context, token, calendarID string, query url.Values) (*eventsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.BaseURL+"/calendars/"+url.PathEscape(calendarID)+"/events?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := httpx.DoIdempotent(ctx, e.client, req, e.retry)
	if err != nil {
		return nil, apperrors.DispatchError("calendar events request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone:
		return nil, trigger.ErrCursorInvalidated
	default:
		return nil, apperrors.DispatchError(
			fmt.Sprintf("calendar refused events listing (status %d)", resp.StatusCode))
	}

	var page eventsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, apperrors.DispatchError("unreadable calendar events response")
	}
	return &page, nil
}

// BootstrapSyncToken walks the full events collection to obtain a fresh
// sync token. The items themselves are discarded; only the position
// matters.
func (e *EventsClient) BootstrapSyncToken(ctx context.Context, token, calendarID string) (string, error) {
	query := url.Values{
		"showDeleted":  {"true"},
		"singleEvents": {"true"},
		"maxResults":   {"50"},
	}
	for {
		page, err := e.page(ctx, token, calendarID, query)
		if err != nil {
			return "", err
		}
		if page.NextPageToken != "" {
			query.Set("pageToken", page.NextPageToken)
			continue
		}
		// Google only hands out the sync token on the final page of a full
		// listing.
		if page.NextSyncToken == "" {
			return "", apperrors.DispatchError("calendar listing ended without a nextSyncToken")
		}
		return page.NextSyncToken, nil
	}
}

// Changes aggregates every page after syncToken. A 410 means the provider
// expired the token; it surfaces as ErrCursorInvalidated so the caller
// can re-baseline. The returned token falls back to the input when the
// final page omits one.
func (e *EventsClient) Changes(ctx context.Context, token, calendarID, syncToken string) ([]map[string]interface{}, string, error) {
	query := url.Values{
		"syncToken":    {syncToken},
		"showDeleted":  {"true"},
		"singleEvents": {"true"},
	}
	var items []map[string]interface{}
	for {
		page, err := e.page(ctx, token, calendarID, query)
		if err != nil {
			return nil, "", err
		}
		items = append(items, page.Items...)
		if page.NextPageToken != "" {
			query.Set("pageToken", page.NextPageToken)
			continue
		}
		next := page.NextSyncToken
		if next == "" {
			next = syncToken
		}
		return items, next, nil
	}
}
