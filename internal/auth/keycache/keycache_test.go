package keycache

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storygate/internal/auth/models"
	"storygate/internal/auth/provider"
	"storygate/internal/platform/circuit"
	gwerrors "storygate/pkg/gateway-errors"
)

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int32
	body    []byte
	err     error
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func (f *fakeFetcher) setBody(body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = body
	f.err = nil
}

func (f *fakeFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func testProvider() *provider.Provider {
	return &provider.Provider{
		Name:             models.ProviderGoogle,
		Issuer:           "https://accounts.google.com",
		JWKSURL:          "https://example.com/certs",
		InvalidTokenCode: gwerrors.CodeInvalidGoogleToken,
		ServiceErrorCode: gwerrors.CodeGoogleServiceError,
	}
}

func jwksBody(t *testing.T, kids ...string) ([]byte, map[string]*rsa.PublicKey) {
	t.Helper()

	type jwkJSON struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	var doc struct {
		Keys []jwkJSON `json:"keys"`
	}

	expected := make(map[string]*rsa.PublicKey, len(kids))
	for _, kid := range kids {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		pub := &priv.PublicKey
		expected[kid] = pub
		doc.Keys = append(doc.Keys, jwkJSON{
			Kty: "RSA",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		})
	}

	body, err := json.Marshal(doc)
	require.NoError(t, err)
	return body, expected
}

func TestCache_FetchesOnMissAndCaches(t *testing.T) {
	body, expected := jwksBody(t, "kid-1", "kid-2")
	fetcher := &fakeFetcher{body: body}
	cache := New(fetcher)
	p := testProvider()

	key, err := cache.Key(context.Background(), p, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, expected["kid-1"].N.Cmp(key.N))

	// Second lookup for either cached kid hits memory
	_, err = cache.Key(context.Background(), p, "kid-2")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.callCount())
}

func TestCache_UnknownKidTriggersSingleRefetch(t *testing.T) {
	body, _ := jwksBody(t, "kid-old")
	fetcher := &fakeFetcher{body: body}
	cache := New(fetcher)
	p := testProvider()

	_, err := cache.Key(context.Background(), p, "kid-old")
	require.NoError(t, err)

	// Provider rotates keys
	rotated, _ := jwksBody(t, "kid-new")
	fetcher.setBody(rotated)

	_, err = cache.Key(context.Background(), p, "kid-new")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.callCount())
}

func TestCache_KidAbsentAfterRefetch(t *testing.T) {
	body, _ := jwksBody(t, "kid-1")
	fetcher := &fakeFetcher{body: body}
	cache := New(fetcher)

	_, err := cache.Key(context.Background(), testProvider(), "kid-missing")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeKeyNotFound))
}

func TestCache_EmptyKidRejectedWithoutFetch(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := New(fetcher)

	_, err := cache.Key(context.Background(), testProvider(), "")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeMissingKeyID))
	assert.Equal(t, int32(0), fetcher.callCount())
}

func TestCache_FetchErrorMapsToProviderServiceError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	cache := New(fetcher)

	_, err := cache.Key(context.Background(), testProvider(), "kid-1")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeGoogleServiceError))
}

func TestCache_MalformedDocumentMapsToDiscoveryError(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`{"keys": []}`)}
	cache := New(fetcher)

	_, err := cache.Key(context.Background(), testProvider(), "kid-1")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeKeyDiscoveryError))
}

func TestCache_TTLExpiryRefetches(t *testing.T) {
	body, _ := jwksBody(t, "kid-1")
	fetcher := &fakeFetcher{body: body}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := New(fetcher, WithTTL(time.Hour), WithClock(func() time.Time { return now }))
	p := testProvider()

	_, err := cache.Key(context.Background(), p, "kid-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = cache.Key(context.Background(), p, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetcher.callCount())
}

func TestCache_ZeroTTLNeverExpires(t *testing.T) {
	body, _ := jwksBody(t, "kid-1")
	fetcher := &fakeFetcher{body: body}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := New(fetcher, WithClock(func() time.Time { return now }))
	p := testProvider()

	_, err := cache.Key(context.Background(), p, "kid-1")
	require.NoError(t, err)

	now = now.Add(30 * 24 * time.Hour)
	_, err = cache.Key(context.Background(), p, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fetcher.callCount())
}

func TestCache_ConcurrentMissesCollapse(t *testing.T) {
	body, _ := jwksBody(t, "kid-1")
	fetcher := &fakeFetcher{body: body, release: make(chan struct{})}
	cache := New(fetcher)
	p := testProvider()

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = cache.Key(context.Background(), p, "kid-1")
		}(i)
	}

	// Let the goroutines pile up on the in-flight fetch, then release it
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetcher.callCount())
}

func TestGuardedFetcher_OpenBreakerFailsFast(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("boom")}
	breaker := circuit.New("google-keys", circuit.WithFailureThreshold(1))
	guarded := NewGuardedFetcher(fetcher, breaker)
	cache := New(guarded)
	p := testProvider()

	_, err := cache.Key(context.Background(), p, "kid-1")
	require.Error(t, err)

	// Breaker is now open; the next lookup never reaches the fetcher
	_, err = cache.Key(context.Background(), p, "kid-1")
	require.Error(t, err)
	assert.True(t, gwerrors.Is(err, gwerrors.CodeCircuitBreakerOpen))
	assert.Equal(t, int32(1), fetcher.callCount())
}
