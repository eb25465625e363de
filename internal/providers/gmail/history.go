package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// Delta is the aggregated change set between two history positions.
type Delta struct {
	MessagesAdded   []map[string]interface{}
	MessagesDeleted []map[string]interface{}
	LabelsAdded     []map[string]interface{}
	LabelsRemoved   []map[string]interface{}
	LastHistoryID   uint64
}

func (d *Delta) empty() bool {
	return len(d.MessagesAdded) == 0 && len(d.MessagesDeleted) == 0 &&
		len(d.LabelsAdded) == 0 && len(d.LabelsRemoved) == 0
}

// HistoryClient pages the users.history API.
type HistoryClient struct {
	BaseURL string
	client  httpx.Doer
	retry   *httpx.RetryConfig
}

// NewHistoryClient builds a history client on the given HTTP client. Pass
// nil for a default client.
func NewHistoryClient(client *http.Client) *HistoryClient {
	if client == nil {
		client = httpx.NewClient()
	}
	return &HistoryClient{
		BaseURL: defaultBaseURL,
		client:  client,
		retry:   httpx.DefaultRetryConfig(),
	}
}

type historyRecord struct {
	ID            string `json:"id"`
	MessagesAdded []struct {
		Message map[string]interface{} `json:"message"`
	} `json:"messagesAdded"`
	MessagesDeleted []struct {
		Message map[string]interface{} `json:"message"`
	} `json:"messagesDeleted"`
	LabelsAdded []struct {
		Message  map[string]interface{} `json:"message"`
		LabelIDs []string               `json:"labelIds"`
	} `json:"labelsAdded"`
	LabelsRemoved []struct {
		Message  map[string]interface{} `json:"message"`
		LabelIDs []string               `json:"labelIds"`
	} `json:"labelsRemoved"`
}

type historyPage struct {
	History       []historyRecord `json:"history"`
	NextPageToken string          `json:"nextPageToken"`
	HistoryID     string          `json:"historyId"`
}

// List aggregates every history page after startHistoryID. A 404 means the
// provider expired the position; it surfaces as ErrCursorInvalidated so the
// caller can re-baseline.
func (h *HistoryClient) List(ctx context.Context, token, startHistoryID string) (*Delta, error) {
	delta := &Delta{}
	pageToken := ""
	for {
		query := url.Values{"startHistoryId": {startHistoryID}}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			h.BaseURL+"/gmail/v1/users/me/history?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := httpx.DoIdempotent(ctx, h.client, req, h.retry)
		if err != nil {
			return nil, apperrors.DispatchError("history listing request failed")
		}

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			resp.Body.Close()
			return nil, trigger.ErrCursorInvalidated
		default:
			resp.Body.Close()
			return nil, apperrors.DispatchError(
				fmt.Sprintf("gmail refused history listing (status %d)", resp.StatusCode))
		}

		var page historyPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, apperrors.DispatchError("unreadable history listing response")
		}

		delta.merge(page)
		pageToken = page.NextPageToken
		if pageToken == "" {
			return delta, nil
		}
	}
}

func (d *Delta) merge(page historyPage) {
	for _, record := range page.History {
		for _, added := range record.MessagesAdded {
			d.MessagesAdded = append(d.MessagesAdded, added.Message)
		}
		for _, deleted := range record.MessagesDeleted {
			d.MessagesDeleted = append(d.MessagesDeleted, deleted.Message)
		}
		for _, labeled := range record.LabelsAdded {
			d.LabelsAdded = append(d.LabelsAdded, labelChange(labeled.Message, labeled.LabelIDs))
		}
		for _, unlabeled := range record.LabelsRemoved {
			d.LabelsRemoved = append(d.LabelsRemoved, labelChange(unlabeled.Message, unlabeled.LabelIDs))
		}
	}
	if id, err := strconv.ParseUint(page.HistoryID, 10, 64); err == nil && id > d.LastHistoryID {
		d.LastHistoryID = id
	}
}

func labelChange(message map[string]interface{}, labelIDs []string) map[string]interface{} {
	return map[string]interface{}{
		"message":   message,
		"label_ids": labelIDs,
	}
}
