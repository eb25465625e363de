package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"net/http"
	"net/url"
	"sync"

	apperrors "triggerhub/internal/common/errors"
	"triggerhub/internal/common/httpx"
)

// signableFields lists, per message type, the fields SNS signs and the order
// they enter the canonical string. Absent fields are skipped (Subject is
// optional on notifications).
var signableFields = map[string][]string{
	"Notification":             {"Message", "MessageId", "Subject", "Timestamp", "TopicArn", "Type"},
	"SubscriptionConfirmation": {"Message", "MessageId", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"},
	"UnsubscribeConfirmation":  {"Message", "MessageId", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"},
}

// canonicalString rebuilds the newline-delimited key/value string SNS signed.
func canonicalString(messageType string, payload map[string]interface{}) ([]byte, error) {
	fields, ok := signableFields[messageType]
	if !ok {
		return nil, apperrors.AuthError("unsignable sns message type: " + messageType)
	}
	var buf []byte
	for _, field := range fields {
		value, present := payload[field].(string)
		if !present {
			continue
		}
		buf = append(buf, field...)
		buf = append(buf, '\n')
		buf = append(buf, value...)
		buf = append(buf, '\n')
	}
	return buf, nil
}

// signatureVerifier checks the RSA signature SNS attaches to every message.
// Signing certificates are fetched from SigningCertURL, which must pass the
// same host policy as SubscribeURL, and cached per URL.
type signatureVerifier struct {
	client httpx.Doer
	retry  *httpx.RetryConfig

	mu    sync.Mutex
	certs map[string]*rsa.PublicKey
}

func newSignatureVerifier(client httpx.Doer, retry *httpx.RetryConfig) *signatureVerifier {
	return &signatureVerifier{
		client: client,
		retry:  retry,
		certs:  make(map[string]*rsa.PublicKey),
	}
}

// Verify authenticates the message before anything downstream reads it. An
// unsigned message is rejected outright.
func (v *signatureVerifier) Verify(ctx context.Context, messageType string, payload map[string]interface{}, allowed func(*url.URL) bool) error {
	encoded, _ := payload["Signature"].(string)
	if encoded == "" {
		return apperrors.AuthError("sns message carries no signature")
	}
	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return apperrors.AuthError("sns signature is not valid base64")
	}

	certURL, _ := payload["SigningCertURL"].(string)
	parsed, err := url.Parse(certURL)
	if err != nil || certURL == "" || !allowed(parsed) {
		return apperrors.AuthError("refusing signing certificate from untrusted source")
	}

	key, err := v.publicKey(ctx, certURL)
	if err != nil {
		return err
	}

	canonical, err := canonicalString(messageType, payload)
	if err != nil {
		return err
	}

	version, _ := payload["SignatureVersion"].(string)
	switch version {
	case "2":
		digest := sha256.Sum256(canonical)
		err = rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature)
	default:
		digest := sha1.Sum(canonical)
		err = rsa.VerifyPKCS1v15(key, crypto.SHA1, digest[:], signature)
	}
	if err != nil {
		return apperrors.AuthError("sns signature verification failed")
	}
	return nil
}

func (v *signatureVerifier) publicKey(ctx context.Context, certURL string) (*rsa.PublicKey, error) {
	v.mu.Lock()
	cached, ok := v.certs[certURL]
	v.mu.Unlock()
	if ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpx.DoIdempotent(ctx, v.client, req, v.retry)
	if err != nil {
		return nil, apperrors.AuthError("failed to fetch sns signing certificate")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.AuthError("sns signing certificate fetch was refused")
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, apperrors.AuthError("unreadable sns signing certificate")
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, apperrors.AuthError("sns signing certificate is not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, apperrors.AuthError("unparsable sns signing certificate")
	}
	key, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, apperrors.AuthError("sns signing certificate carries no RSA key")
	}

	v.mu.Lock()
	v.certs[certURL] = key
	v.mu.Unlock()
	return key, nil
}
