// Package trigger contains the core data model and contracts of the
// trigger subsystem: subscriptions, webhook dispatch, event projection and
// the provider registry. Provider adapters implement the Dispatcher,
// Lifecycle and Projector interfaces; the host consumes EventDispatch and
// Variables.
package trigger

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// NeverExpires is the ExpiresAt sentinel for subscriptions without a
// provider-side TTL.
const NeverExpires int64 = -1

// Subscription represents one active registration of interest with an
// external provider.
//
// Parameters hold the user's declared configuration and are immutable
// business intent. Properties hold opaque provider state (webhook id,
// signing secret, cursor, channel id) and are written only by the
// Lifecycle implementation and the Dispatcher. Properties must contain
// everything required to authenticate and interpret a future webhook
// without consulting Parameters again.
type Subscription struct {
	ID         string                 `json:"id"`
	Provider   string                 `json:"provider"`
	Endpoint   string                 `json:"endpoint"`
	ExpiresAt  int64                  `json:"expires_at"`
	Parameters map[string]interface{} `json:"parameters"`
	Properties map[string]string      `json:"properties"`
}

// IsExpired reports whether the subscription's provider-side registration
// has lapsed.
func (s *Subscription) IsExpired(now time.Time) bool {
	if s.ExpiresAt == NeverExpires {
		return false
	}
	return now.Unix() >= s.ExpiresAt
}

// ExpiresWithin reports whether the subscription needs renewal inside the
// given lead window.
func (s *Subscription) ExpiresWithin(now time.Time, lead time.Duration) bool {
	if s.ExpiresAt == NeverExpires {
		return false
	}
	return now.Add(lead).Unix() >= s.ExpiresAt
}

// Param returns a string parameter, or empty when unset or not a string.
func (s *Subscription) Param(key string) string {
	if s.Parameters == nil {
		return ""
	}
	value, _ := s.Parameters[key].(string)
	return value
}

// WebhookRequest is the normalized inbound HTTP request handed to a
// Dispatcher. Body is the raw bytes, preserved for signature verification.
type WebhookRequest struct {
	Method  string
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// WebhookResponse is the HTTP response returned to the external provider.
// It is always set, even for zero-event deliveries and handshakes.
type WebhookResponse struct {
	StatusCode  int
	ContentType string
	Body        string
}

// AckResponse acknowledges a delivery with a JSON ok body.
func AckResponse() *WebhookResponse {
	return &WebhookResponse{
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Body:        `{"status":"ok"}`,
	}
}

// ChallengeResponse echoes a verification handshake token verbatim.
func ChallengeResponse(token string) *WebhookResponse {
	return &WebhookResponse{
		StatusCode:  http.StatusOK,
		ContentType: "text/plain",
		Body:        token,
	}
}

// EventDispatch is the Dispatcher output for one inbound delivery.
//
// Payload is an optional pre-computed, provider-agnostic mapping forwarded
// to every resolved projector; dispatchers that perform an incremental
// fetch populate it once so the round-trip is not repeated per event.
type EventDispatch struct {
	Events   []string
	Response *WebhookResponse
	Payload  map[string]interface{}
}

// Variables is the Event Projector output: a flat mapping consumed by the
// host. Values must be JSON-serializable.
type Variables map[string]interface{}

// UnsubscribeResult reports the outcome of a best-effort unsubscribe.
type UnsubscribeResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ParameterOption is one entry of a dynamic configuration listing.
type ParameterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// CredentialType tags the credential union.
type CredentialType string

const (
	CredentialAPIKey       CredentialType = "api_key"
	CredentialOAuth        CredentialType = "oauth"
	CredentialUnauthorized CredentialType = "unauthorized"
)

// Credentials are owned by the host and handed to the subsystem
// per-invocation; the subsystem never persists them. Persistent
// secret/cursor state lives in Subscription.Properties instead.
type Credentials struct {
	Type         CredentialType
	APIKey       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	// Extra carries provider-specific credential material, e.g. a GCP
	// service account blob for Pub/Sub provisioning.
	Extra map[string]string
}

// Dispatcher is the per-provider webhook entry point. It authenticates the
// inbound request, normalizes the payload, resolves logical event names,
// optionally performs an incremental fetch, and returns an EventDispatch
// whose Response is always set.
type Dispatcher interface {
	DispatchEvent(ctx context.Context, sub *Subscription, req *WebhookRequest) (*EventDispatch, error)
}

// Lifecycle creates, refreshes and deletes a provider-side webhook
// registration and owns Subscription records.
type Lifecycle interface {
	// ValidateCredentials performs a lightweight authenticated call, or
	// rejects with guidance when the credential type is unsupported.
	ValidateCredentials(ctx context.Context, creds Credentials) error

	// CreateSubscription registers the webhook with the provider and
	// returns a Subscription whose Properties are self-sufficient. It
	// fails loudly and atomically: no half-initialized Subscription is
	// ever returned.
	CreateSubscription(ctx context.Context, endpoint string, parameters map[string]interface{}, creds Credentials) (*Subscription, error)

	// RefreshSubscription renews expiry. Channel-based providers may swap
	// the channel and reset the incremental position; consumers must
	// tolerate an event gap across the refresh boundary.
	RefreshSubscription(ctx context.Context, sub *Subscription, creds Credentials) (*Subscription, error)

	// DeleteSubscription tears down provider resources best-effort.
	// "Already gone" is normalized to success, and secondary cleanup
	// never fails the primary unsubscribe.
	DeleteSubscription(ctx context.Context, sub *Subscription, creds Credentials) (*UnsubscribeResult, error)

	// FetchParameterOptions paginates a provider listing endpoint and
	// aggregates every page before returning.
	FetchParameterOptions(ctx context.Context, parameter string, creds Credentials) ([]ParameterOption, error)
}

// Projector turns an authenticated payload plus configured filter
// parameters into Variables, or an Ignore signal when a filter rejects the
// event. Ignore is not a fault.
type Projector interface {
	Project(ctx context.Context, payload map[string]interface{}, parameters map[string]interface{}) (Variables, error)
}

// ProjectorFunc adapts a function to the Projector interface.
type ProjectorFunc func(ctx context.Context, payload map[string]interface{}, parameters map[string]interface{}) (Variables, error)

// Project implements Projector.
func (f ProjectorFunc) Project(ctx context.Context, payload map[string]interface{}, parameters map[string]interface{}) (Variables, error) {
	return f(ctx, payload, parameters)
}
