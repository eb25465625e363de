// Package github adapts GitHub repository webhooks: HMAC body signatures,
// hook lifecycle against the REST API, and projectors for the common
// repository events.
package github

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "github"

const (
	defaultBaseURL  = "https://api.github.com"
	signatureHeader = "X-Hub-Signature-256"
	eventHeader     = "X-GitHub-Event"
	signaturePrefix = "sha256="
)

// eventTable resolves GitHub delivery types. Unified types map 1:1 and let
// projector filters discriminate on action; release and deployment_status
// multiplex into per-action events.
var eventTable = trigger.EventTable{
	Direct: map[string]string{
		"push":          "push",
		"issues":        "issues",
		"issue_comment": "issue_comment",
		"pull_request":  "pull_request",
		"star":          "star",
	},
	Composite: map[string]bool{
		"release":           true,
		"deployment_status": true,
	},
}

// Register installs the GitHub dispatcher, lifecycle and projectors.
func Register(reg *trigger.Registry, client *http.Client) error {
	if err := reg.RegisterProvider(Provider, NewDispatcher(), NewLifecycle(client)); err != nil {
		return err
	}
	for event, projector := range projectors() {
		if err := reg.RegisterEvent(Provider, event, projector); err != nil {
			return err
		}
	}
	return nil
}

// randomSecret generates the per-hook signing secret stored in
// subscription properties.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
