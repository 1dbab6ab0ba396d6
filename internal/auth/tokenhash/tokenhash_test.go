package tokenhash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("some-refresh-token")
	require.NoError(t, err)
	assert.NotEqual(t, "some-refresh-token", hash)

	assert.True(t, h.Verify("some-refresh-token", hash))
	assert.False(t, h.Verify("different-token", hash))
}

func TestHasher_LongTokensAreDistinct(t *testing.T) {
	// bcrypt alone truncates at 72 bytes; the SHA-256 pre-hash must keep
	// long tokens with a shared prefix distinguishable.
	h := NewHasher(bcrypt.MinCost)

	prefix := strings.Repeat("a", 80)
	hash, err := h.Hash(prefix + "x")
	require.NoError(t, err)

	assert.False(t, h.Verify(prefix+"y", hash))
	assert.True(t, h.Verify(prefix+"x", hash))
}

func TestHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewHasher(-1)
	hash, err := h.Hash("token")
	require.NoError(t, err)
	assert.True(t, h.Verify("token", hash))
}

func TestHasher_GarbageHashDoesNotVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	assert.False(t, h.Verify("token", "not-a-bcrypt-hash"))
}
