package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triggerhub/internal/providers/dropbox"
	"triggerhub/internal/providers/github"
	"triggerhub/internal/store"
	"triggerhub/internal/trigger"
)

const testSecret = "wh-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func testRouter(t *testing.T, sink Sink) (http.Handler, *trigger.Subscriptions) {
	t.Helper()
	reg := trigger.NewRegistry()
	require.NoError(t, github.Register(reg, nil))

	subs := trigger.NewSubscriptions(store.NewMemoryStore())
	require.NoError(t, subs.Save(context.Background(), &trigger.Subscription{
		ID:       "sub-1",
		Provider: github.Provider,
		Properties: map[string]string{
			"secret":     testSecret,
			"repository": "octo/widgets",
		},
	}))

	return NewRouter(reg, subs, sink), subs
}

func post(t *testing.T, handler http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHookDelivery(t *testing.T) {
	var delivered []trigger.EventBatch
	handler, _ := testRouter(t, func(ctx context.Context, provider string, sub *trigger.Subscription, batches []trigger.EventBatch) {
		delivered = batches
	})

	body := `{"action":"opened","issue":{"number":7,"title":"broken"}}`
	rec := post(t, handler, "/hooks/github/sub-1", body, map[string]string{
		"X-GitHub-Event":      "issues",
		"X-Hub-Signature-256": sign(body),
		"Content-Type":        "application/json",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, delivered, 1)
	assert.Equal(t, "issues", delivered[0].Event)
	assert.Equal(t, float64(7), delivered[0].Variables["number"])
}

func TestHookBadSignatureIs401(t *testing.T) {
	handler, _ := testRouter(t, nil)

	rec := post(t, handler, "/hooks/github/sub-1", `{"action":"opened"}`, map[string]string{
		"X-GitHub-Event":      "issues",
		"X-Hub-Signature-256": "sha256=deadbeef",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHookMalformedBodyIs400(t *testing.T) {
	handler, _ := testRouter(t, nil)

	body := `{"truncated":`
	rec := post(t, handler, "/hooks/github/sub-1", body, map[string]string{
		"X-GitHub-Event":      "issues",
		"X-Hub-Signature-256": sign(body),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHookUnknownSubscriptionIs404(t *testing.T) {
	handler, _ := testRouter(t, nil)

	rec := post(t, handler, "/hooks/github/nope", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHookUnknownProviderIs404(t *testing.T) {
	handler, subs := testRouter(t, nil)
	require.NoError(t, subs.Save(context.Background(), &trigger.Subscription{
		ID: "sub-2", Provider: "gitlab",
	}))

	rec := post(t, handler, "/hooks/gitlab/sub-2", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHookFilteredDeliveryStillAcks(t *testing.T) {
	sinkCalled := false
	handler, subs := testRouter(t, func(ctx context.Context, provider string, sub *trigger.Subscription, batches []trigger.EventBatch) {
		sinkCalled = true
	})
	require.NoError(t, subs.Save(context.Background(), &trigger.Subscription{
		ID:       "sub-3",
		Provider: github.Provider,
		Parameters: map[string]interface{}{
			"branches": "release",
		},
		Properties: map[string]string{"secret": testSecret},
	}))

	body := `{"ref":"refs/heads/main","commits":[]}`
	rec := post(t, handler, "/hooks/github/sub-3", body, map[string]string{
		"X-GitHub-Event":      "push",
		"X-Hub-Signature-256": sign(body),
	})

	assert.Equal(t, http.StatusOK, rec.Code, "a fully filtered delivery is still success")
	assert.False(t, sinkCalled)
}

func TestHookGetChallengeEchoesBody(t *testing.T) {
	reg := trigger.NewRegistry()
	subs := trigger.NewSubscriptions(store.NewMemoryStore())
	checkpoint := trigger.NewCheckpoint(store.NewMemoryStore())
	require.NoError(t, dropbox.Register(reg, checkpoint, nil))
	require.NoError(t, subs.Save(context.Background(), &trigger.Subscription{
		ID:         "sub-d",
		Provider:   dropbox.Provider,
		Properties: map[string]string{"app_secret": "s"},
	}))
	handler := NewRouter(reg, subs, nil)

	req := httptest.NewRequest(http.MethodGet, "/hooks/dropbox/sub-d?challenge=xyz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xyz", rec.Body.String(), "verification challenge echoes back exactly")
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestHealth(t *testing.T) {
	handler, _ := testRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
