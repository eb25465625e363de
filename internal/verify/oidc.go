package verify

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/idtoken"

	"triggerhub/internal/common/errors"
)

// OIDCClaims are the claims this subsystem checks on push-delivery tokens.
type OIDCClaims struct {
	Issuer  string
	Subject string
	Email   string
}

// TokenValidator verifies a raw OIDC token against an audience and returns
// its claims. The production validator delegates to Google's JWKS-backed
// verification; tests substitute a locally keyed one.
type TokenValidator func(ctx context.Context, token, audience string) (*OIDCClaims, error)

// GoogleValidator validates tokens against Google's public keys.
func GoogleValidator(ctx context.Context, token, audience string) (*OIDCClaims, error) {
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return nil, errors.AuthError("OIDC token validation failed: " + err.Error())
	}

	claims := &OIDCClaims{
		Issuer:  payload.Issuer,
		Subject: payload.Subject,
	}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}

// HMACKeyValidator builds a TokenValidator that verifies HS256 tokens with
// a static key. Test use only.
func HMACKeyValidator(key []byte) TokenValidator {
	return func(ctx context.Context, token, audience string) (*OIDCClaims, error) {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.AuthError("unexpected signing method")
			}
			return key, nil
		}, jwt.WithAudience(audience))
		if err != nil {
			return nil, errors.AuthError("OIDC token validation failed: " + err.Error())
		}

		mapClaims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			return nil, errors.AuthError("OIDC token has no claims")
		}

		claims := &OIDCClaims{}
		if iss, err := mapClaims.GetIssuer(); err == nil {
			claims.Issuer = iss
		}
		if sub, err := mapClaims.GetSubject(); err == nil {
			claims.Subject = sub
		}
		if email, ok := mapClaims["email"].(string); ok {
			claims.Email = email
		}
		return claims, nil
	}
}

// OIDC verifies an OIDC bearer token on an inbound push delivery.
type OIDC struct {
	Audience      string
	Issuers       []string
	ExpectedEmail string
	Validator     TokenValidator
}

// Verify extracts the bearer token and checks audience, issuer and, when
// configured, the expected service-account email.
func (v OIDC) Verify(ctx context.Context, headers http.Header) error {
	token, err := BearerToken(headers)
	if err != nil {
		return err
	}

	validator := v.Validator
	if validator == nil {
		validator = GoogleValidator
	}

	claims, err := validator(ctx, token, v.Audience)
	if err != nil {
		return err
	}

	if len(v.Issuers) > 0 {
		ok := false
		for _, issuer := range v.Issuers {
			if claims.Issuer == issuer {
				ok = true
				break
			}
		}
		if !ok {
			return errors.AuthError("invalid OIDC token issuer: " + claims.Issuer)
		}
	}

	if v.ExpectedEmail != "" && claims.Email != v.ExpectedEmail {
		return errors.AuthError("OIDC token service account email mismatch")
	}

	return nil
}
