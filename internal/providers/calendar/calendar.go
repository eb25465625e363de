// Package calendar adapts Google Calendar watch-channel push
// notifications. A notification only signals that the calendar changed;
// the dispatcher replays the events collection from a persisted sync
// token to recover what actually happened, and the lifecycle swaps watch
// channels on refresh because Google channels cannot be extended in
// place.
package calendar

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"triggerhub/internal/trigger"
)

// Provider is the registry name of this adapter.
const Provider = "google_calendar"

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Register installs the Google Calendar dispatcher, lifecycle and
// projectors.
func Register(reg *trigger.Registry, checkpoint *trigger.Checkpoint, client *http.Client) error {
	if err := reg.RegisterProvider(Provider, NewDispatcher(checkpoint, client), NewLifecycle(client)); err != nil {
		return err
	}
	for event, projector := range projectors() {
		if err := reg.RegisterEvent(Provider, event, projector); err != nil {
			return err
		}
	}
	return nil
}

// randomToken generates the channel token Google echoes back in the
// X-Goog-Channel-Token header of every notification.
func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func calendarIDParam(parameters map[string]interface{}) string {
	if id, _ := parameters["calendar_id"].(string); id != "" {
		return id
	}
	return "primary"
}
