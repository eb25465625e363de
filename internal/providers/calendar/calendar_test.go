package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/store"
	"triggerhub/internal/trigger"
)

// fakeCalendarAPI stands in for the Calendar API: events listings keyed by
// sync token (or page token), watch creation, channel stops and the
// calendar list.
type fakeCalendarAPI struct {
	baselineToken string
	changes       map[string]string
	staleTokens   map[string]bool

	watches []map[string]interface{}
	stopped []string
	calls   []string
}

func (f *fakeCalendarAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events"):
			key := r.URL.Query().Get("syncToken")
			if page := r.URL.Query().Get("pageToken"); page != "" {
				key = page
			}
			if key == "" {
				fmt.Fprintf(w, `{"items":[],"nextSyncToken":"%s"}`, f.baselineToken)
				return
			}
			if f.staleTokens[key] {
				w.WriteHeader(http.StatusGone)
				return
			}
			if body, ok := f.changes[key]; ok {
				fmt.Fprint(w, body)
				return
			}
			fmt.Fprintf(w, `{"items":[],"nextSyncToken":"%s"}`, key)
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events/watch"):
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.watches = append(f.watches, body)
			f.calls = append(f.calls, "watch")
			fmt.Fprint(w, `{"resourceId":"res-1","resourceUri":"https://www.googleapis.com/calendar/v3/res-1","expiration":"1893456000000"}`)
		case r.URL.Path == "/channels/stop":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			id, _ := body["id"].(string)
			f.stopped = append(f.stopped, id)
			f.calls = append(f.calls, "stop")
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/users/me/calendarList"):
			fmt.Fprint(w, `{"items":[{"id":"team@example.com","summary":"Team"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func calendarSub() *trigger.Subscription {
	return &trigger.Subscription{
		ID:       "sub-cal",
		Provider: Provider,
		Properties: map[string]string{
			"access_token":  "ya29.token",
			"calendar_id":   "primary",
			"channel_id":    "chan-1",
			"channel_token": "tok-1",
		},
	}
}

func notification(state string) *trigger.WebhookRequest {
	headers := http.Header{}
	headers.Set("X-Goog-Channel-Id", "chan-1")
	headers.Set("X-Goog-Channel-Token", "tok-1")
	headers.Set("X-Goog-Resource-State", state)
	headers.Set("X-Goog-Resource-Id", "res-1")
	return &trigger.WebhookRequest{Method: http.MethodPost, Headers: headers}
}

func testDispatcher(t *testing.T, api *fakeCalendarAPI) (*Dispatcher, *trigger.Checkpoint) {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	checkpoint := trigger.NewCheckpoint(store.NewMemoryStore())
	d := NewDispatcher(checkpoint, server.Client())
	d.Events.BaseURL = server.URL
	return d, checkpoint
}

func testLifecycle(t *testing.T, api *fakeCalendarAPI) *Lifecycle {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	l := NewLifecycle(server.Client())
	l.BaseURL = server.URL
	l.events.BaseURL = server.URL
	return l
}

func oauthCreds() trigger.Credentials {
	return trigger.Credentials{Type: trigger.CredentialOAuth, AccessToken: "ya29.token"}
}

func TestDispatchEventRejectsChannelMismatch(t *testing.T) {
	d, _ := testDispatcher(t, &fakeCalendarAPI{})

	req := notification("exists")
	req.Headers.Set("X-Goog-Channel-Id", "chan-forged")

	_, err := d.DispatchEvent(context.Background(), calendarSub(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
}

func TestDispatchEventRejectsBadChannelToken(t *testing.T) {
	d, _ := testDispatcher(t, &fakeCalendarAPI{})

	req := notification("exists")
	req.Headers.Set("X-Goog-Channel-Token", "tok-guessed")

	_, err := d.DispatchEvent(context.Background(), calendarSub(), req)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
}

func TestDispatchEventSeedsFromWatchBaseline(t *testing.T) {
	d, checkpoint := testDispatcher(t, &fakeCalendarAPI{baselineToken: "cur-full"})
	ctx := context.Background()

	sub := calendarSub()
	sub.Properties["initial_sync_token"] = "cur-watch"

	dispatch, err := d.DispatchEvent(ctx, sub, notification("exists"))
	require.NoError(t, err)
	assert.Empty(t, dispatch.Events, "first delivery only seeds the baseline")
	assert.Equal(t, http.StatusOK, dispatch.Response.StatusCode)

	cursor, ok, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cur-watch", cursor, "the watch-time token wins over a fresh listing")
}

func TestDispatchEventBootstrapsWithoutWatchToken(t *testing.T) {
	d, checkpoint := testDispatcher(t, &fakeCalendarAPI{baselineToken: "cur-full"})
	ctx := context.Background()

	dispatch, err := d.DispatchEvent(ctx, calendarSub(), notification("exists"))
	require.NoError(t, err)
	assert.Empty(t, dispatch.Events)

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-full", cursor)
}

func TestDispatchEventSyncStateAcknowledges(t *testing.T) {
	d, checkpoint := testDispatcher(t, &fakeCalendarAPI{})
	ctx := context.Background()
	require.NoError(t, checkpoint.Save(ctx, Provider, "sub-cal", "cur-1"))

	dispatch, err := d.DispatchEvent(ctx, calendarSub(), notification("sync"))
	require.NoError(t, err)
	assert.Empty(t, dispatch.Events)

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-1", cursor, "the sync handshake leaves the position alone")
}

func TestDispatchEventPartitionsChanges(t *testing.T) {
	api := &fakeCalendarAPI{changes: map[string]string{
		"cur-1": `{"items":[
			{"id":"e1","status":"confirmed","sequence":0,"created":"2026-03-01T10:00:00Z","updated":"2026-03-01T10:00:00Z"},
			{"id":"e2","status":"confirmed","sequence":4,"created":"2026-01-01T08:00:00Z","updated":"2026-03-01T11:00:00Z"},
			{"id":"e3","status":"cancelled"}
		],"nextSyncToken":"cur-2"}`,
	}}
	d, checkpoint := testDispatcher(t, api)
	ctx := context.Background()
	require.NoError(t, checkpoint.Save(ctx, Provider, "sub-cal", "cur-1"))

	dispatch, err := d.DispatchEvent(ctx, calendarSub(), notification("exists"))
	require.NoError(t, err)
	assert.Equal(t, []string{"calendar_event_created", "calendar_event_updated", "calendar_event_deleted"}, dispatch.Events)

	created, _ := dispatch.Payload["created"].([]interface{})
	require.Len(t, created, 1)
	first, _ := created[0].(map[string]interface{})
	assert.Equal(t, "e1", first["id"])
	assert.Equal(t, "created", first["change_type"])
	assert.Equal(t, "cur-2", dispatch.Payload["sync_token"])

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-2", cursor, "cursor advances before the delivery returns")

	// A redelivery of the same notification replays from the advanced
	// position and finds nothing.
	redelivery, err := d.DispatchEvent(ctx, calendarSub(), notification("exists"))
	require.NoError(t, err)
	assert.Empty(t, redelivery.Events)
}

func TestDispatchEventSkipsCancelledWhenConfigured(t *testing.T) {
	api := &fakeCalendarAPI{changes: map[string]string{
		"cur-1": `{"items":[{"id":"e3","status":"cancelled"}],"nextSyncToken":"cur-2"}`,
	}}
	d, checkpoint := testDispatcher(t, api)
	ctx := context.Background()
	require.NoError(t, checkpoint.Save(ctx, Provider, "sub-cal", "cur-1"))

	sub := calendarSub()
	sub.Parameters = map[string]interface{}{"include_cancelled": "false"}

	dispatch, err := d.DispatchEvent(ctx, sub, notification("exists"))
	require.NoError(t, err)
	assert.Empty(t, dispatch.Events, "cancellations are dropped, not emitted")

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-2", cursor, "the position still advances past dropped changes")
}

func TestDispatchEventPaginatesChanges(t *testing.T) {
	api := &fakeCalendarAPI{changes: map[string]string{
		"cur-1": `{"items":[{"id":"e1","status":"confirmed","sequence":0}],"nextPageToken":"p2"}`,
		"p2":    `{"items":[{"id":"e2","status":"confirmed","sequence":0}],"nextSyncToken":"cur-3"}`,
	}}
	d, checkpoint := testDispatcher(t, api)
	ctx := context.Background()
	require.NoError(t, checkpoint.Save(ctx, Provider, "sub-cal", "cur-1"))

	dispatch, err := d.DispatchEvent(ctx, calendarSub(), notification("exists"))
	require.NoError(t, err)
	created, _ := dispatch.Payload["created"].([]interface{})
	assert.Len(t, created, 2, "all pages aggregate into one delivery")

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-3", cursor)
}

func TestDispatchEventExpiredTokenReBaselines(t *testing.T) {
	api := &fakeCalendarAPI{
		baselineToken: "cur-fresh",
		staleTokens:   map[string]bool{"cur-stale": true},
	}
	d, checkpoint := testDispatcher(t, api)
	ctx := context.Background()
	require.NoError(t, checkpoint.Save(ctx, Provider, "sub-cal", "cur-stale"))

	dispatch, err := d.DispatchEvent(ctx, calendarSub(), notification("exists"))
	require.NoError(t, err, "an expired token is swallowed, not surfaced")
	assert.Empty(t, dispatch.Events)

	cursor, _, err := checkpoint.Load(ctx, Provider, "sub-cal")
	require.NoError(t, err)
	assert.Equal(t, "cur-fresh", cursor, "checkpoint resets to a full-listing position")
}

func TestCreateSubscriptionOpensChannel(t *testing.T) {
	api := &fakeCalendarAPI{baselineToken: "cur-0"}
	l := testLifecycle(t, api)

	sub, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/hooks/google_calendar/x",
		map[string]interface{}{"calendar_id": "team@example.com"}, oauthCreds())
	require.NoError(t, err)

	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, Provider, sub.Provider)
	assert.Equal(t, "team@example.com", sub.Properties["calendar_id"])
	assert.NotEmpty(t, sub.Properties["channel_id"])
	assert.NotEmpty(t, sub.Properties["channel_token"])
	assert.Equal(t, "res-1", sub.Properties["resource_id"])
	assert.Equal(t, "cur-0", sub.Properties["initial_sync_token"])
	assert.Equal(t, int64(1893456000), sub.ExpiresAt, "expiry converts from Google's millisecond stamp")

	require.Len(t, api.watches, 1)
	assert.Equal(t, "https://hooks.example.com/hooks/google_calendar/x", api.watches[0]["address"])
	assert.Equal(t, "webhook", api.watches[0]["type"])
}

func TestCreateSubscriptionRejectsAPIKey(t *testing.T) {
	api := &fakeCalendarAPI{}
	l := testLifecycle(t, api)

	_, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/h",
		nil, trigger.Credentials{Type: trigger.CredentialAPIKey, APIKey: "k"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	assert.Empty(t, api.watches, "no watch starts on rejected credentials")
}

func TestRefreshSubscriptionSwapsChannel(t *testing.T) {
	api := &fakeCalendarAPI{baselineToken: "cur-9"}
	l := testLifecycle(t, api)

	sub := calendarSub()
	sub.Endpoint = "https://hooks.example.com/hooks/google_calendar/sub-cal"
	sub.Properties["channel_id"] = "chan-old"
	sub.Properties["resource_id"] = "res-old"

	refreshed, err := l.RefreshSubscription(context.Background(), sub, oauthCreds())
	require.NoError(t, err)

	assert.NotEqual(t, "chan-old", refreshed.Properties["channel_id"], "refresh opens a replacement channel")
	assert.Equal(t, "cur-9", refreshed.Properties["initial_sync_token"])
	assert.Equal(t, []string{"chan-old"}, api.stopped)
	assert.Equal(t, []string{"watch", "stop"}, api.calls, "the replacement opens before the old channel stops")
	assert.Equal(t, "chan-old", sub.Properties["channel_id"], "input subscription is untouched")
}

func TestDeleteSubscriptionStopsChannel(t *testing.T) {
	api := &fakeCalendarAPI{}
	l := testLifecycle(t, api)

	sub := calendarSub()
	sub.Properties["resource_id"] = "res-1"

	result, err := l.DeleteSubscription(context.Background(), sub, oauthCreds())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"chan-1"}, api.stopped)
}

func TestDeleteSubscriptionWithoutChannelReportsFailure(t *testing.T) {
	l := testLifecycle(t, &fakeCalendarAPI{})

	sub := calendarSub()
	delete(sub.Properties, "channel_id")

	result, err := l.DeleteSubscription(context.Background(), sub, oauthCreds())
	require.NoError(t, err, "cleanup trouble is reported, never raised")
	assert.False(t, result.Success)
}

func TestFetchParameterOptionsIncludesPrimary(t *testing.T) {
	l := testLifecycle(t, &fakeCalendarAPI{})

	options, err := l.FetchParameterOptions(context.Background(), "calendar_id", oauthCreds())
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "primary", options[0].Value, "the primary calendar is always offered")
	assert.Equal(t, "team@example.com", options[1].Value)
	assert.Equal(t, "Team", options[1].Label)
}

func TestProjectChangeBatch(t *testing.T) {
	projector := projectors()["calendar_event_created"]

	payload := map[string]interface{}{
		"calendar_id": "primary",
		"sync_token":  "cur-2",
		"created":     []interface{}{map[string]interface{}{"id": "e1"}},
	}
	vars, err := projector.Project(context.Background(), payload, nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", vars["calendar_id"])
	assert.Equal(t, 1, vars["count"])

	_, err = projector.Project(context.Background(), map[string]interface{}{}, nil)
	require.Error(t, err)
	assert.True(t, trigger.IsIgnore(err))
}

func TestRegisterWiresEverything(t *testing.T) {
	reg := trigger.NewRegistry()
	checkpoint := trigger.NewCheckpoint(store.NewMemoryStore())
	require.NoError(t, Register(reg, checkpoint, nil))

	for _, event := range []string{"calendar_event_created", "calendar_event_updated", "calendar_event_deleted"} {
		_, err := reg.Projector(Provider, event)
		require.NoError(t, err, event)
	}
}
