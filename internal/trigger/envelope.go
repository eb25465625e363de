package trigger

import (
	"encoding/base64"
	"encoding/json"
	"net/url"

	apperrors "triggerhub/internal/common/errors"
)

// ParseJSONBody decodes a JSON object body. Empty or non-object bodies are
// malformed-payload errors, not panics.
func ParseJSONBody(body []byte) (map[string]interface{}, error) {
	if len(body) == 0 {
		return nil, apperrors.MalformedPayloadError("empty request body", nil)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.MalformedPayloadError("invalid JSON body", err)
	}
	return payload, nil
}

// ParseFormPayload decodes an application/x-www-form-urlencoded body whose
// payload field carries the JSON document, the alternate encoding some
// providers use for the same events.
func ParseFormPayload(body []byte) (map[string]interface{}, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, apperrors.MalformedPayloadError("invalid form body", err)
	}
	raw := values.Get("payload")
	if raw == "" {
		return nil, apperrors.MalformedPayloadError("form body missing payload field", nil)
	}
	return ParseJSONBody([]byte(raw))
}

// PubSubMessage is the inner message of a Pub/Sub push envelope. Data is
// standard base64 of the publisher's bytes.
type PubSubMessage struct {
	Data        string            `json:"data"`
	MessageID   string            `json:"messageId"`
	Attributes  map[string]string `json:"attributes"`
	PublishTime string            `json:"publishTime"`
}

// PubSubEnvelope is the Pub/Sub push delivery wrapper.
type PubSubEnvelope struct {
	Message      PubSubMessage `json:"message"`
	Subscription string        `json:"subscription"`
}

// ParsePubSubEnvelope unwraps a Pub/Sub push body and decodes the inner
// message data as a JSON object.
func ParsePubSubEnvelope(body []byte) (*PubSubEnvelope, map[string]interface{}, error) {
	var envelope PubSubEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, apperrors.MalformedPayloadError("invalid push envelope", err)
	}
	if envelope.Message.Data == "" {
		return nil, nil, apperrors.MalformedPayloadError("push envelope missing message data", nil)
	}
	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return nil, nil, apperrors.MalformedPayloadError("push message data is not valid base64", err)
	}
	inner, err := ParseJSONBody(decoded)
	if err != nil {
		return nil, nil, err
	}
	return &envelope, inner, nil
}
