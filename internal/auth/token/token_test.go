package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygate/internal/auth/models"
	gwerrors "storygate/pkg/gateway-errors"
)

func newTestIssuer() *Issuer {
	return NewIssuer("test-signing-key", "storygate", 15*time.Minute, 7*24*time.Hour)
}

func TestIssuer_AccessRoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	raw, err := issuer.IssueAccess("user-1", models.ProviderGoogle, "session-1")
	require.NoError(t, err)

	claims, err := issuer.ValidateAccess(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, TypeAccess, claims.TokenType)
	assert.Equal(t, "google", claims.Provider)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Equal(t, "storygate", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestIssuer_RefreshRoundTrip(t *testing.T) {
	issuer := newTestIssuer()

	raw, err := issuer.IssueRefresh("user-1", "session-1")
	require.NoError(t, err)

	claims, err := issuer.ValidateRefresh(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeRefresh, claims.TokenType)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.Empty(t, claims.Provider)
}

func TestIssuer_RefreshCannotActAsAccess(t *testing.T) {
	issuer := newTestIssuer()

	raw, err := issuer.IssueRefresh("user-1", "session-1")
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidTokenType))
}

func TestIssuer_AccessCannotActAsRefresh(t *testing.T) {
	issuer := newTestIssuer()

	raw, err := issuer.IssueAccess("user-1", models.ProviderApple, "session-1")
	require.NoError(t, err)

	_, err = issuer.ValidateRefresh(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidTokenType))
}

func TestIssuer_ExpiredAccessToken(t *testing.T) {
	issuer := newTestIssuer()

	past := time.Now().Add(-time.Hour)
	issuer.WithClock(func() time.Time { return past })
	raw, err := issuer.IssueAccess("user-1", models.ProviderGoogle, "session-1")
	require.NoError(t, err)

	issuer.WithClock(time.Now)
	_, err = issuer.ValidateAccess(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeTokenExpired))
}

func TestIssuer_ExpiredRefreshTokenMapsToSessionExpired(t *testing.T) {
	issuer := newTestIssuer()

	past := time.Now().Add(-30 * 24 * time.Hour)
	issuer.WithClock(func() time.Time { return past })
	raw, err := issuer.IssueRefresh("user-1", "session-1")
	require.NoError(t, err)

	issuer.WithClock(time.Now)
	_, err = issuer.ValidateRefresh(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeSessionExpired))
}

func TestIssuer_WrongKeyRejected(t *testing.T) {
	issuer := newTestIssuer()
	other := NewIssuer("different-key", "storygate", 15*time.Minute, 7*24*time.Hour)

	raw, err := other.IssueAccess("user-1", models.ProviderGoogle, "session-1")
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidToken))
}

func TestIssuer_WrongIssuerRejected(t *testing.T) {
	issuer := newTestIssuer()
	other := NewIssuer("test-signing-key", "someone-else", 15*time.Minute, 7*24*time.Hour)

	raw, err := other.IssueAccess("user-1", models.ProviderGoogle, "session-1")
	require.NoError(t, err)

	_, err = issuer.ValidateAccess(raw)
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidToken))
}

func TestIssuer_GarbageRejected(t *testing.T) {
	issuer := newTestIssuer()

	_, err := issuer.ValidateAccess("not-a-jwt")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidToken))

	_, err = issuer.ValidateRefresh("not-a-jwt")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeInvalidRefreshToken))
}
