// Package dropbox adapts Dropbox webhooks in manual mode: users point
// their own Dropbox App at the endpoint, deliveries verify against the app
// secret, and an optional access token turns notifications into concrete
// file change lists via the cursor-based files API.
package dropbox

import (
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "dropbox"

const (
	defaultBaseURL  = "https://api.dropboxapi.com"
	signatureHeader = "X-Dropbox-Signature"
	requestIDHeader = "X-Dropbox-Request-Id"
)

// Register installs the Dropbox dispatcher, lifecycle and projector. The
// checkpoint persists the per-subscription folder cursor.
func Register(reg *trigger.Registry, checkpoint *trigger.Checkpoint, client *http.Client) error {
	if err := reg.RegisterProvider(Provider, NewDispatcher(checkpoint, client), NewLifecycle(client)); err != nil {
		return err
	}
	return reg.RegisterEvent(Provider, "file_changes", trigger.ProjectorFunc(projectFileChanges))
}
