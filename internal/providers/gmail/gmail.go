// Package gmail adapts Gmail push notifications delivered over Cloud
// Pub/Sub. Notifications only say "something changed"; the dispatcher pages
// the users.history API from a persisted checkpoint to recover the actual
// message deltas, and the lifecycle provisions the Pub/Sub topic and push
// subscription behind users.watch.
package gmail

import (
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "gmail"

const (
	defaultBaseURL = "https://gmail.googleapis.com"
	defaultTopicID = "triggerhub-gmail"
)

// Deps wires the dispatcher and lifecycle to host-owned infrastructure.
type Deps struct {
	Checkpoint  *trigger.Checkpoint
	Client      *http.Client
	Provisioner TopicProvisioner
	TopicID     string
}

// Register installs the Gmail dispatcher, lifecycle and projectors.
func Register(reg *trigger.Registry, deps Deps) error {
	dispatcher := NewDispatcher(deps.Checkpoint, deps.Client)
	lifecycle := NewLifecycle(deps.Client, deps.Provisioner, deps.TopicID)
	if err := reg.RegisterProvider(Provider, dispatcher, lifecycle); err != nil {
		return err
	}
	for event, projector := range projectors() {
		if err := reg.RegisterEvent(Provider, event, projector); err != nil {
			return err
		}
	}
	return nil
}
