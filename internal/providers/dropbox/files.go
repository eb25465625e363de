package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
	"triggerhub/internal/trigger"
)

// FilesClient drives the cursor-based files API: latest-cursor baselines
// and list_folder/continue pages.
type FilesClient struct {
	BaseURL string
	client  httpx.Doer
	retry   *httpx.RetryConfig
}

// NewFilesClient builds a files client on the given HTTP client. Pass nil
// for a default client.
func NewFilesClient(client *http.Client) *FilesClient {
	if client == nil {
		client = httpx.NewClient()
	}
	return &FilesClient{
		BaseURL: defaultBaseURL,
		client:  client,
		retry:   httpx.DefaultRetryConfig(),
	}
}

func (f *FilesClient) call(ctx context.Context, token, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return apperrors.InternalError("failed to encode dropbox request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	// These RPC endpoints are read-only despite the POST verb, so retrying
	// them is safe.
	resp, err := httpx.DoIdempotent(ctx, f.client, req, f.retry)
	if err != nil {
		return apperrors.DispatchError("dropbox api request failed: " + path)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		// list_folder/continue answers 409 when the cursor no longer maps
		// to the folder state.
		return trigger.ErrCursorInvalidated
	default:
		return apperrors.DispatchError(
			fmt.Sprintf("dropbox refused %s (status %d)", path, resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.DispatchError("unreadable dropbox response: " + path)
	}
	return nil
}

// LatestCursor returns the current folder position without listing any
// entries, used to baseline a fresh subscription.
func (f *FilesClient) LatestCursor(ctx context.Context, token string) (string, error) {
	body := map[string]interface{}{
		"path":                           "",
		"recursive":                      true,
		"include_deleted":                true,
		"include_non_downloadable_files": true,
	}
	var result struct {
		Cursor string `json:"cursor"`
	}
	if err := f.call(ctx, token, "/2/files/list_folder/get_latest_cursor", body, &result); err != nil {
		return "", err
	}
	if result.Cursor == "" {
		return "", apperrors.DispatchError("dropbox returned no cursor")
	}
	return result.Cursor, nil
}

// Continue fetches one page of entries after the cursor.
func (f *FilesClient) Continue(ctx context.Context, token, cursor string) (entries []map[string]interface{}, next string, hasMore bool, err error) {
	var result struct {
		Entries []map[string]interface{} `json:"entries"`
		Cursor  string                   `json:"cursor"`
		HasMore bool                     `json:"has_more"`
	}
	if err := f.call(ctx, token, "/2/files/list_folder/continue", map[string]string{"cursor": cursor}, &result); err != nil {
		return nil, "", false, err
	}
	next = result.Cursor
	if next == "" {
		next = cursor
	}
	return result.Entries, next, result.HasMore, nil
}

// formatEntry normalizes a raw list_folder entry into the change shape the
// projector emits. A "deleted" tag marks removal; everything else is an
// upsert.
func formatEntry(entry map[string]interface{}) map[string]interface{} {
	tag, _ := entry[".tag"].(string)
	if tag == "" {
		tag, _ = entry["tag"].(string)
	}
	tag = strings.ToLower(tag)
	action := "upsert"
	if tag == "deleted" {
		action = "deleted"
	}
	return map[string]interface{}{
		"action":          action,
		"tag":             tag,
		"id":              entry["id"],
		"name":            entry["name"],
		"path_display":    entry["path_display"],
		"path_lower":      entry["path_lower"],
		"server_modified": entry["server_modified"],
		"client_modified": entry["client_modified"],
		"rev":             entry["rev"],
		"size":            entry["size"],
		"content_hash":    entry["content_hash"],
	}
}
