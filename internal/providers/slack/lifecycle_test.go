package slack

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/trigger"
)

func testLifecycle(t *testing.T, handler http.Handler) *Lifecycle {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	l := NewLifecycle(server.Client())
	l.BaseURL = server.URL
	return l
}

func slackCreds() trigger.Credentials {
	return trigger.Credentials{Type: trigger.CredentialOAuth, AccessToken: "xoxb-token"}
}

func TestValidateCredentials(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth.test", r.URL.Path)
		require.Equal(t, "Bearer xoxb-token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"ok":true,"team":"widgets"}`)
	}))

	assert.NoError(t, l.ValidateCredentials(context.Background(), slackCreds()))
}

func TestValidateCredentialsRejected(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error":"invalid_auth"}`)
	}))

	err := l.ValidateCredentials(context.Background(), slackCreds())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
	assert.Contains(t, err.Error(), "invalid_auth")
}

func TestCreateSubscriptionRecordsSecret(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true}`)
	}))

	sub, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/hooks/slack/s1",
		map[string]interface{}{"signing_secret": "sek", "channels": "C1"}, slackCreds())
	require.NoError(t, err)
	assert.Equal(t, "sek", sub.Properties["signing_secret"])
	assert.Equal(t, trigger.NeverExpires, sub.ExpiresAt)
}

func TestCreateSubscriptionRequiresSecret(t *testing.T) {
	l := NewLifecycle(nil)
	_, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/x", nil, slackCreds())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestDeleteSubscriptionLocalOnly(t *testing.T) {
	l := NewLifecycle(nil)
	result, err := l.DeleteSubscription(context.Background(), &trigger.Subscription{ID: "s1"}, slackCreds())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestFetchParameterOptionsFollowsCursor(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("cursor") == "" {
			fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C1","name":"general"}],"response_metadata":{"next_cursor":"page2"}}`)
			return
		}
		require.Equal(t, "page2", r.Form.Get("cursor"))
		fmt.Fprint(w, `{"ok":true,"channels":[{"id":"C2","name":"random"}],"response_metadata":{"next_cursor":""}}`)
	}))

	options, err := l.FetchParameterOptions(context.Background(), "channel", slackCreds())
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "C1", options[0].Value)
	assert.Equal(t, "#random", options[1].Label)
}
