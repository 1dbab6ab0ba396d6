package validator

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygate/internal/auth/keycache"
	"storygate/internal/auth/models"
	"storygate/internal/auth/provider"
	"storygate/internal/platform/config"
	gwerrors "storygate/pkg/gateway-errors"
)

const (
	googleIssuer = "https://accounts.google.com"
	webClientID  = "web-client"
)

type staticFetcher struct {
	body []byte
}

func (f *staticFetcher) Fetch(context.Context, string) ([]byte, error) {
	return f.body, nil
}

type testHarness struct {
	validator *Validator
	signKey   *rsa.PrivateKey
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(priv.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()),
		}},
	}
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	registry := provider.NewRegistry(
		config.GoogleConfig{ClientID: webClientID, IOSClientID: "ios-client"},
		config.AppleConfig{ClientID: "com.example.app", ExpoClientID: "host.exp.Exponent"},
	)
	cache := keycache.New(&staticFetcher{body: body})

	return &testHarness{
		validator: New(registry, cache),
		signKey:   priv,
	}
}

type tokenOverrides struct {
	issuer   string
	audience string
	subject  string
	kid      string
	nonce    string
	expires  time.Time
	extra    map[string]any
}

func (h *testHarness) mint(t *testing.T, o tokenOverrides) string {
	t.Helper()

	if o.issuer == "" {
		o.issuer = googleIssuer
	}
	if o.audience == "" {
		o.audience = webClientID
	}
	if o.subject == "" {
		o.subject = "google-user-1"
	}
	if o.kid == "" {
		o.kid = "kid-1"
	}
	if o.expires.IsZero() {
		o.expires = time.Now().Add(time.Hour)
	}

	claims := jwt.MapClaims{
		"iss": o.issuer,
		"aud": o.audience,
		"sub": o.subject,
		"exp": o.expires.Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
	if o.nonce != "" {
		claims["nonce"] = o.nonce
	}
	for k, v := range o.extra {
		claims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = o.kid
	signed, err := token.SignedString(h.signKey)
	require.NoError(t, err)
	return signed
}

func TestVerify_ValidToken(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{extra: map[string]any{
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Test User",
		"picture":        "https://example.com/p.png",
	}})

	claims, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGoogle, claims.Provider)
	assert.Equal(t, "google-user-1", claims.Subject)
	assert.Equal(t, googleIssuer, claims.Issuer)
	assert.Equal(t, webClientID, claims.Audience)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.True(t, claims.EmailVerified)
	assert.Equal(t, "Test User", claims.Name)
}

func TestVerify_StringEmailVerified(t *testing.T) {
	// Apple encodes email_verified as the string "true"
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{extra: map[string]any{
		"email":          "user@example.com",
		"email_verified": "true",
	}})

	claims, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.NoError(t, err)
	assert.True(t, claims.EmailVerified)
}

func TestVerify_SecondaryAudienceAccepted(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{audience: "ios-client"})

	claims, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.NoError(t, err)
	assert.Equal(t, "ios-client", claims.Audience)
}

func TestVerify_AudienceListCheckedBeyondFirstEntry(t *testing.T) {
	h := newHarness(t)

	raw := h.mint(t, tokenOverrides{extra: map[string]any{
		"aud": []string{"other-service", webClientID},
	}})
	claims, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.NoError(t, err)
	assert.Equal(t, webClientID, claims.Audience)

	raw = h.mint(t, tokenOverrides{extra: map[string]any{
		"aud": []string{"other-service", "someone-else"},
	}})
	_, err = h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidAudience))
}

func TestVerify_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{expires: time.Now().Add(-time.Hour)})

	_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeTokenExpired))
}

func TestVerify_WrongIssuer(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{issuer: "https://evil.example.com"})

	_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidIssuer))
}

func TestVerify_WrongAudience(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{audience: "someone-else"})

	_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidAudience))
}

func TestVerify_MissingKidHeader(t *testing.T) {
	h := newHarness(t)

	claims := jwt.MapClaims{
		"iss": googleIssuer,
		"aud": webClientID,
		"sub": "google-user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	delete(token.Header, "kid")
	raw, err := token.SignedString(h.signKey)
	require.NoError(t, err)

	_, err = h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeMissingKeyID))
}

func TestVerify_UnknownKid(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{kid: "kid-rotated-away"})

	_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeKeyNotFound))
}

func TestVerify_ForeignSigningKey(t *testing.T) {
	h := newHarness(t)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := jwt.MapClaims{
		"iss": googleIssuer,
		"aud": webClientID,
		"sub": "google-user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "kid-1"
	raw, err := token.SignedString(other)
	require.NoError(t, err)

	_, err = h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidGoogleToken))
}

func TestVerify_SymmetricAlgorithmRejected(t *testing.T) {
	h := newHarness(t)

	claims := jwt.MapClaims{
		"iss": googleIssuer,
		"aud": webClientID,
		"sub": "google-user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = "kid-1"
	raw, err := token.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidGoogleToken))
}

func TestVerify_MissingSubject(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{subject: "ignored", extra: map[string]any{"sub": ""}})

	_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidGoogleToken))
}

func TestVerify_UnknownProvider(t *testing.T) {
	h := newHarness(t)
	raw := h.mint(t, tokenOverrides{})

	_, err := h.validator.Verify(context.Background(), models.Provider("facebook"), raw, "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeUnknownProvider))
}

func TestVerify_NonceContract(t *testing.T) {
	h := newHarness(t)

	t.Run("no expected nonce skips the check", func(t *testing.T) {
		raw := h.mint(t, tokenOverrides{nonce: "anything"})
		_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "")
		assert.NoError(t, err)
	})

	t.Run("verbatim match passes", func(t *testing.T) {
		raw := h.mint(t, tokenOverrides{nonce: "expected-nonce"})
		_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "expected-nonce")
		assert.NoError(t, err)
	})

	t.Run("hashed match passes", func(t *testing.T) {
		sum := sha256.Sum256([]byte("expected-nonce"))
		hashed := base64.RawURLEncoding.EncodeToString(sum[:])
		raw := h.mint(t, tokenOverrides{nonce: hashed})
		_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "expected-nonce")
		assert.NoError(t, err)
	})

	t.Run("mismatch fails", func(t *testing.T) {
		raw := h.mint(t, tokenOverrides{nonce: "some-other-nonce"})
		_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "expected-nonce")
		require.Error(t, err)
		assert.True(t, gwerrors.Is(err, gwerrors.CodeNonceInvalid))
	})

	t.Run("expected nonce but token has none fails", func(t *testing.T) {
		raw := h.mint(t, tokenOverrides{})
		_, err := h.validator.Verify(context.Background(), models.ProviderGoogle, raw, "expected-nonce")
		require.Error(t, err)
		assert.True(t, gwerrors.Is(err, gwerrors.CodeNonceInvalid))
	})
}
