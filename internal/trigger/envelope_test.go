package trigger

import (
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "triggerhub/internal/common/errors"
)

func TestParseJSONBody(t *testing.T) {
	payload, err := ParseJSONBody([]byte(`{"action":"opened","number":7}`))
	require.NoError(t, err)
	assert.Equal(t, "opened", payload["action"])
	assert.Equal(t, float64(7), payload["number"])
}

func TestParseJSONBodyMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":     nil,
		"truncated": []byte(`{"action":`),
		"non-object": []byte(`[1,2,3]`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseJSONBody(body)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPayload))
		})
	}
}

func TestParseFormPayload(t *testing.T) {
	form := url.Values{"payload": {`{"action":"closed"}`}}.Encode()

	payload, err := ParseFormPayload([]byte(form))
	require.NoError(t, err)
	assert.Equal(t, "closed", payload["action"])
}

func TestParseFormPayloadMissingField(t *testing.T) {
	_, err := ParseFormPayload([]byte("other=value"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPayload))
}

func TestParsePubSubEnvelope(t *testing.T) {
	inner := base64.StdEncoding.EncodeToString([]byte(`{"emailAddress":"u@example.com","historyId":12345}`))
	body := []byte(`{"message":{"data":"` + inner + `","messageId":"m-1"},"subscription":"projects/p/subscriptions/s"}`)

	envelope, payload, err := ParsePubSubEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, "m-1", envelope.Message.MessageID)
	assert.Equal(t, "u@example.com", payload["emailAddress"])
	assert.Equal(t, float64(12345), payload["historyId"])
}

func TestParsePubSubEnvelopeBadData(t *testing.T) {
	_, _, err := ParsePubSubEnvelope([]byte(`{"message":{"data":"%%%not-base64%%%"}}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPayload))

	_, _, err = ParsePubSubEnvelope([]byte(`{"message":{}}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPayload))
}
