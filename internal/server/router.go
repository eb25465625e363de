package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/middleware"
	"triggerhub/internal/trigger"
)

// maxBodyBytes caps inbound webhook bodies. Providers deliver small JSON
// documents; anything larger is abuse.
const maxBodyBytes = 5 << 20

// Sink receives projected events for one delivery. The host decides what
// consumption means: enqueue, forward, log.
type Sink func(ctx context.Context, provider string, sub *trigger.Subscription, batches []trigger.EventBatch)

// Router handles inbound webhook traffic against the trigger registry.
type Router struct {
	registry *trigger.Registry
	subs     *trigger.Subscriptions
	sink     Sink
}

// NewRouter builds the mux router with the hook and health routes.
func NewRouter(registry *trigger.Registry, subs *trigger.Subscriptions, sink Sink) *mux.Router {
	router := &Router{registry: registry, subs: subs, sink: sink}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.HandleFunc("/health", router.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/hooks/{provider}/{subscription}", router.handleHook).
		Methods(http.MethodPost, http.MethodGet)
	return r
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleHook runs the dispatch pipeline for one delivery and writes the
// dispatcher's response verbatim. Errors map onto the taxonomy:
// authentication failures are 401, malformed payloads 400, unknown
// subscriptions or providers 404, everything else 500.
func (rt *Router) handleHook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	provider := vars["provider"]
	subscriptionID := vars["subscription"]

	sub, err := rt.subs.Load(r.Context(), provider, subscriptionID)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		rt.writeError(w, apperrors.MalformedPayloadError("unreadable request body", err))
		return
	}

	req := &trigger.WebhookRequest{
		Method:  r.Method,
		Headers: r.Header,
		Query:   r.URL.Query(),
		Body:    body,
	}

	dispatch, batches, err := trigger.Dispatch(r.Context(), rt.registry, provider, sub, req)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	if len(batches) > 0 && rt.sink != nil {
		rt.sink(r.Context(), provider, sub, batches)
	}

	resp := dispatch.Response
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.WriteString(w, resp.Body); err != nil {
		logging.Warn("failed to write webhook response",
			logging.Field{Key: "provider", Value: provider},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperrors.IsType(err, apperrors.ErrTypeAuth):
		status = http.StatusUnauthorized
	case apperrors.IsType(err, apperrors.ErrTypeMalformedPayload),
		apperrors.IsType(err, apperrors.ErrTypeValidation):
		status = http.StatusBadRequest
	case apperrors.IsType(err, apperrors.ErrTypeNotFound),
		errors.Is(err, trigger.ErrProviderNotRegistered):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		logging.Error("webhook dispatch failed", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
