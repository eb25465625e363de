// Package verify implements stateless authentication of inbound webhook
// deliveries: HMAC body signatures, HMAC over composed timestamp strings,
// shared-secret header tokens and OIDC bearer tokens. Every verifier
// rejects before any provider-specific parsing and uses constant-time
// comparison.
package verify

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"net/http"
	"strconv"
	"strings"
	"time"

	"triggerhub/internal/common/errors"
)

// Algorithm selects the HMAC hash function.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

func (a Algorithm) newHash(secret string) (hash.Hash, error) {
	switch a {
	case SHA1:
		return hmac.New(sha1.New, []byte(secret)), nil
	case SHA256, "":
		return hmac.New(sha256.New, []byte(secret)), nil
	case SHA512:
		return hmac.New(sha512.New, []byte(secret)), nil
	default:
		return nil, errors.ValidationError("unsupported HMAC algorithm: " + string(a))
	}
}

// HMACBody verifies an HMAC signature computed over the raw request body,
// carried in a header with an optional scheme prefix ("sha256=...").
type HMACBody struct {
	Secret    string
	Header    string
	Prefix    string
	Algorithm Algorithm
}

// Verify checks the body signature against the header value.
func (v HMACBody) Verify(headers http.Header, body []byte) error {
	signature := headers.Get(v.Header)
	if signature == "" {
		return errors.AuthError("missing signature header " + v.Header)
	}

	h, err := v.Algorithm.newHash(v.Secret)
	if err != nil {
		return err
	}
	h.Write(body)
	expected := v.Prefix + hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errors.AuthError("invalid webhook signature")
	}
	return nil
}

// HMACSignedString verifies a Slack-style signature over
// "{version}:{timestamp}:{body}". The timestamp window is checked before
// any HMAC computation so replays fail fast.
type HMACSignedString struct {
	Secret          string
	SignatureHeader string
	TimestampHeader string
	Version         string
	Tolerance       time.Duration

	// now is a test hook; nil means time.Now.
	now func() time.Time
}

// Verify checks the timestamp window, then the composed-string signature.
func (v HMACSignedString) Verify(headers http.Header, body []byte) error {
	timestampStr := headers.Get(v.TimestampHeader)
	if timestampStr == "" {
		return errors.AuthError("missing timestamp header " + v.TimestampHeader)
	}

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return errors.AuthError("invalid timestamp header: " + timestampStr)
	}

	tolerance := v.Tolerance
	if tolerance == 0 {
		tolerance = 5 * time.Minute
	}

	nowFn := v.now
	if nowFn == nil {
		nowFn = time.Now
	}
	age := nowFn().Unix() - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > tolerance {
		return errors.AuthError(fmt.Sprintf("request timestamp outside allowed tolerance: %ds", age))
	}

	signature := headers.Get(v.SignatureHeader)
	if signature == "" {
		return errors.AuthError("missing signature header " + v.SignatureHeader)
	}

	version := v.Version
	if version == "" {
		version = "v0"
	}

	h := hmac.New(sha256.New, []byte(v.Secret))
	h.Write([]byte(version + ":" + timestampStr + ":"))
	h.Write(body)
	expected := version + "=" + hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errors.AuthError("invalid request signature")
	}
	return nil
}

// SharedToken verifies a shared secret carried verbatim in a header.
type SharedToken struct {
	Secret string
	Header string
}

// Verify compares the header token against the stored secret.
func (v SharedToken) Verify(headers http.Header, body []byte) error {
	token := headers.Get(v.Header)
	if token == "" {
		return errors.AuthError("missing token header " + v.Header)
	}
	if !hmac.Equal([]byte(token), []byte(v.Secret)) {
		return errors.AuthError("invalid shared secret token")
	}
	return nil
}

// BearerToken extracts a bearer token from the Authorization header.
func BearerToken(headers http.Header) (string, error) {
	auth := headers.Get("Authorization")
	if auth == "" {
		return "", errors.AuthError("missing Authorization header")
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" || token == auth {
		return "", errors.AuthError("Authorization header is not a bearer token")
	}
	return token, nil
}
