package github

import (
	"context"
	"encoding/json"
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

func oauthCreds() trigger.Credentials {
	return trigger.Credentials{Type: trigger.CredentialOAuth, AccessToken: "gh-token"}
}

func TestCreateSubscription(t *testing.T) {
	var gotAuth string
	var gotConfig map[string]interface{}
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/repos/octo/widgets/hooks", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotConfig, _ = body["config"].(map[string]interface{})

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":42}`)
	}))

	sub, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/hooks/github/sub-1",
		map[string]interface{}{"repository": "octo/widgets"}, oauthCreds())
	require.NoError(t, err)

	assert.Equal(t, "Bearer gh-token", gotAuth)
	assert.Equal(t, "https://hooks.example.com/hooks/github/sub-1", gotConfig["url"])

	assert.Equal(t, Provider, sub.Provider)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "42", sub.Properties["webhook_id"])
	assert.Equal(t, "octo/widgets", sub.Properties["repository"])
	assert.NotEmpty(t, sub.Properties["secret"], "signing secret must be self-sufficient in properties")
	assert.Equal(t, gotConfig["secret"], sub.Properties["secret"])
}

func TestCreateSubscriptionProviderRefusal(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message":"Hook already exists"}`)
	}))

	_, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/x",
		map[string]interface{}{"repository": "octo/widgets"}, oauthCreds())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSubscription))
	assert.Contains(t, err.Error(), "Hook already exists", "provider response surfaces in diagnostics")
}

func TestCreateSubscriptionMissingRepository(t *testing.T) {
	l := NewLifecycle(nil)
	_, err := l.CreateSubscription(context.Background(), "https://hooks.example.com/x", nil, oauthCreds())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestDeleteSubscriptionGoneIsSuccess(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	result, err := l.DeleteSubscription(context.Background(), githubSub(), oauthCreds())
	require.NoError(t, err)
	assert.True(t, result.Success, "a hook that is already gone is a successful unsubscribe")
}

func TestDeleteSubscription(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/repos/octo/widgets/hooks/42", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	result, err := l.DeleteSubscription(context.Background(), githubSub(), oauthCreds())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRefreshSubscriptionExtendsExpiry(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":42,"active":true}`)
	}))

	sub := githubSub()
	sub.ExpiresAt = 1

	refreshed, err := l.RefreshSubscription(context.Background(), sub, oauthCreds())
	require.NoError(t, err)
	assert.Greater(t, refreshed.ExpiresAt, sub.ExpiresAt)
	assert.Equal(t, int64(1), sub.ExpiresAt, "input subscription is not mutated")
}

func TestRefreshSubscriptionHookGone(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := l.RefreshSubscription(context.Background(), githubSub(), oauthCreds())
	require.Error(t, err)
	assert.Equal(t, "hook_gone", apperrors.GetCode(err))
}

func TestFetchParameterOptionsAggregatesPages(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			repos := make([]map[string]string, 100)
			for i := range repos {
				repos[i] = map[string]string{"full_name": fmt.Sprintf("octo/repo-%d", i)}
			}
			require.NoError(t, json.NewEncoder(w).Encode(repos))
		case "2":
			fmt.Fprint(w, `[{"full_name":"octo/last"}]`)
		default:
			t.Fatalf("unexpected page %s", page)
		}
	}))

	options, err := l.FetchParameterOptions(context.Background(), "repository", oauthCreds())
	require.NoError(t, err)
	assert.Len(t, options, 101, "all pages aggregate before returning")
	assert.Equal(t, "octo/last", options[100].Value)
}

func TestFetchParameterOptionsUnknownParameter(t *testing.T) {
	l := NewLifecycle(nil)
	_, err := l.FetchParameterOptions(context.Background(), "nope", oauthCreds())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestValidateCredentials(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user", r.URL.Path)
		fmt.Fprint(w, `{"login":"octocat"}`)
	}))
	assert.NoError(t, l.ValidateCredentials(context.Background(), oauthCreds()))
}

func TestValidateCredentialsRejected(t *testing.T) {
	l := testLifecycle(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := l.ValidateCredentials(context.Background(), oauthCreds())
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
}

func TestValidateCredentialsUnsupportedType(t *testing.T) {
	l := NewLifecycle(nil)
	err := l.ValidateCredentials(context.Background(), trigger.Credentials{Type: trigger.CredentialUnauthorized})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}
