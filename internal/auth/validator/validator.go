// Package validator verifies provider identity tokens: signature against the
// provider's published keys, issuer, audience allow-list, expiry, and the
// optional nonce binding.
package validator

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"storygate/internal/auth/keycache"
	"storygate/internal/auth/models"
	"storygate/internal/auth/provider"
	gwerrors "storygate/pkg/gateway-errors"
)

var tracer = otel.Tracer("storygate/internal/auth/validator")

// Validator checks identity tokens against a provider registry and key cache.
type Validator struct {
	registry *provider.Registry
	keys     *keycache.Cache
	parser   *jwt.Parser
}

// New builds a Validator. Only RS256 is accepted; both supported providers
// sign identity tokens with it.
func New(registry *provider.Registry, keys *keycache.Cache) *Validator {
	return &Validator{
		registry: registry,
		keys:     keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// boolish accepts both boolean and string encodings of email_verified; Apple
// sends "true" as a string.
type boolish bool

func (b *boolish) UnmarshalJSON(data []byte) error {
	if v, err := strconv.ParseBool(string(data)); err == nil {
		*b = boolish(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = boolish(v)
	return nil
}

type identityTokenClaims struct {
	jwt.RegisteredClaims
	Email         string  `json:"email,omitempty"`
	EmailVerified boolish `json:"email_verified,omitempty"`
	Name          string  `json:"name,omitempty"`
	Picture       string  `json:"picture,omitempty"`
	Nonce         string  `json:"nonce,omitempty"`
}

// Verify checks rawToken against the named provider and returns its verified
// claims. expectedNonce, when non-empty, must be bound into the token either
// verbatim or as its base64url-encoded SHA-256 digest.
func (v *Validator) Verify(ctx context.Context, tag models.Provider, rawToken, expectedNonce string) (*models.IdentityClaims, error) {
	ctx, span := tracer.Start(ctx, "validator.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("auth.provider", string(tag)))

	p, err := v.registry.Lookup(tag)
	if err != nil {
		return nil, err
	}

	claims := &identityTokenClaims{}
	_, err = v.parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, p, kid)
	})
	if err != nil {
		return nil, v.mapParseError(p, err)
	}

	if claims.Issuer != p.Issuer {
		return nil, gwerrors.Newf(gwerrors.CodeInvalidIssuer, "token issued by %q, expected %q", claims.Issuer, p.Issuer)
	}

	aud, ok := acceptedAudience(p, claims.Audience)
	if !ok {
		return nil, gwerrors.New(gwerrors.CodeInvalidAudience, "token audience is not accepted for "+string(p.Name))
	}

	if err := checkNonce(expectedNonce, claims.Nonce); err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, gwerrors.New(p.InvalidTokenCode, "token has no subject")
	}

	out := &models.IdentityClaims{
		Provider:      p.Name,
		Subject:       claims.Subject,
		Issuer:        claims.Issuer,
		Audience:      aud,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
		Nonce:         claims.Nonce,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// mapParseError translates jwt-go parse failures into the gateway taxonomy,
// preserving codes already assigned by the key cache.
func (v *Validator) mapParseError(p *provider.Provider, err error) error {
	if gwerrors.IsGatewayError(err) {
		return err
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return gwerrors.Wrap(err, gwerrors.CodeTokenExpired, "identity token is expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return gwerrors.Wrap(err, p.InvalidTokenCode, "identity token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return gwerrors.Wrap(err, p.InvalidTokenCode, "identity token signature is invalid")
	default:
		return gwerrors.Wrap(err, p.InvalidTokenCode, "identity token verification failed")
	}
}

// checkNonce enforces the nonce contract. No expected nonce skips the check
// entirely. With an expected nonce, the token must carry one that matches
// either verbatim or as the base64url SHA-256 digest of the expected value.
func checkNonce(expected, got string) error {
	if expected == "" {
		return nil
	}
	if got == "" {
		return gwerrors.New(gwerrors.CodeNonceInvalid, "token is missing the expected nonce")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1 {
		return nil
	}
	sum := sha256.Sum256([]byte(expected))
	hashed := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(got), []byte(hashed)) == 1 {
		return nil
	}
	return gwerrors.New(gwerrors.CodeNonceInvalid, "token nonce does not match")
}

// acceptedAudience returns the first audience entry on the provider's
// allow-list. A token is rejected only when every entry misses the list.
func acceptedAudience(p *provider.Provider, aud jwt.ClaimStrings) (string, bool) {
	for _, a := range aud {
		if p.AcceptsAudience(a) {
			return a, true
		}
	}
	return "", false
}
