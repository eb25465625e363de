package dropbox

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/logging"
	"triggerhub/internal/trigger"
	"triggerhub/internal/verify"
)

// maxPages bounds a single delivery's change fetch; anything beyond it
// arrives with the next notification.
const maxPages = 10

// Dispatcher answers the GET verification challenge and turns signed POST
// notifications into file change batches via the checkpointed cursor.
type Dispatcher struct {
	Files *FilesClient

	checkpoint *trigger.Checkpoint
	// now is a test hook; nil means time.Now.
	now func() time.Time
}

// NewDispatcher builds a dispatcher on the given checkpoint and HTTP
// client.
func NewDispatcher(checkpoint *trigger.Checkpoint, client *http.Client) *Dispatcher {
	return &Dispatcher{
		Files:      NewFilesClient(client),
		checkpoint: checkpoint,
	}
}

// DispatchEvent handles the two delivery shapes Dropbox sends:
//
//   - GET with a challenge query parameter: echo the challenge verbatim as
//     text/plain with zero events (endpoint verification);
//   - POST: verify the body signature against the app secret, then, when
//     an access token is on file, resolve the notification into concrete
//     changes from the stored cursor. The cursor advances before the
//     response is built, so a redelivery finds nothing new.
//
// Without an access token the notification dispatches with the notified
// account IDs and an empty change list.
func (d *Dispatcher) DispatchEvent(ctx context.Context, sub *trigger.Subscription, req *trigger.WebhookRequest) (*trigger.EventDispatch, error) {
	if req.Method == http.MethodGet {
		if challenge := req.Query.Get("challenge"); challenge != "" {
			return &trigger.EventDispatch{Response: trigger.ChallengeResponse(challenge)}, nil
		}
		return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
	}

	secret := sub.Properties["app_secret"]
	if secret == "" {
		return nil, apperrors.DispatchError("subscription has no stored app secret")
	}
	verifier := verify.HMACBody{Secret: secret, Header: signatureHeader}
	if err := verifier.Verify(req.Headers, req.Body); err != nil {
		return nil, err
	}

	payload, err := trigger.ParseJSONBody(req.Body)
	if err != nil {
		return nil, err
	}

	cursorBefore := ""
	cursorAfter := ""
	var changes []interface{}

	if token := sub.Properties["access_token"]; token != "" {
		stored, ok, err := d.checkpoint.Load(ctx, Provider, sub.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// First notification: record the current folder position and
			// acknowledge; changes flow from the next delivery on.
			baseline, err := d.Files.LatestCursor(ctx, token)
			if err != nil {
				return nil, err
			}
			if err := d.checkpoint.Save(ctx, Provider, sub.ID, baseline); err != nil {
				return nil, err
			}
			logging.Info("dropbox cursor baseline established",
				logging.Field{Key: "subscription", Value: sub.ID})
			return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
		}

		cursorBefore = stored
		cursor := stored
		for i := 0; i < maxPages; i++ {
			entries, next, hasMore, err := d.Files.Continue(ctx, token, cursor)
			if errors.Is(err, trigger.ErrCursorInvalidated) {
				return d.rebaseline(ctx, sub, token)
			}
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				changes = append(changes, formatEntry(entry))
			}
			cursor = next
			if !hasMore {
				break
			}
		}
		if err := d.checkpoint.Save(ctx, Provider, sub.ID, cursor); err != nil {
			return nil, err
		}
		cursorAfter = cursor
	}

	now := d.now
	if now == nil {
		now = time.Now
	}

	return &trigger.EventDispatch{
		Events:   []string{"file_changes"},
		Response: trigger.AckResponse(),
		Payload: map[string]interface{}{
			"accounts":      notifiedAccounts(payload),
			"cursor_before": cursorBefore,
			"cursor_after":  cursorAfter,
			"changes":       changes,
			"raw":           payload,
			"request_id":    req.Headers.Get(requestIDHeader),
			"received_at":   now().Unix(),
		},
	}, nil
}

// rebaseline swallows a delivery whose cursor the folder no longer
// recognizes and records a fresh position.
func (d *Dispatcher) rebaseline(ctx context.Context, sub *trigger.Subscription, token string) (*trigger.EventDispatch, error) {
	baseline, err := d.Files.LatestCursor(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := d.checkpoint.Save(ctx, Provider, sub.ID, baseline); err != nil {
		return nil, err
	}
	logging.Warn("dropbox cursor expired, re-baselined",
		logging.Field{Key: "subscription", Value: sub.ID})
	return &trigger.EventDispatch{Response: trigger.AckResponse()}, nil
}

func notifiedAccounts(payload map[string]interface{}) []interface{} {
	listFolder, _ := payload["list_folder"].(map[string]interface{})
	accounts, _ := listFolder["accounts"].([]interface{})
	return accounts
}
