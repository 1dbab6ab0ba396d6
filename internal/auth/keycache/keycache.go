// Package keycache caches provider signing keys fetched from JWKS endpoints.
// Concurrent cache misses for the same provider collapse into a single
// upstream fetch, and an unknown key ID triggers one refetch so provider key
// rotation is picked up without a restart.
package keycache

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storygate/internal/auth/provider"
	"storygate/internal/platform/circuit"
	gwerrors "storygate/pkg/gateway-errors"
)

// Fetcher retrieves the raw JWKS document at url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches JWKS documents over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher wraps client; a nil client uses a 10 second timeout default.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// GuardedFetcher runs a Fetcher under a circuit breaker so a failing key
// endpoint cannot pile up requests.
type GuardedFetcher struct {
	next    Fetcher
	breaker *circuit.Breaker
}

// NewGuardedFetcher wraps next with breaker.
func NewGuardedFetcher(next Fetcher, breaker *circuit.Breaker) *GuardedFetcher {
	return &GuardedFetcher{next: next, breaker: breaker}
}

func (f *GuardedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.breaker.Do(ctx, func(ctx context.Context) error {
		var ferr error
		body, ferr = f.next.Fetch(ctx, url)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

type entry struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// Cache holds verified provider signing keys in memory.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL makes cached key sets expire after d. Zero keeps keys until a
// lookup misses.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a Cache backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the provider signing key identified by kid, fetching the
// provider's JWKS document on a miss. An empty kid is rejected before any
// network call.
func (c *Cache) Key(ctx context.Context, p *provider.Provider, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, gwerrors.New(gwerrors.CodeMissingKeyID, "identity token has no key ID")
	}

	if key, ok := c.cached(p.JWKSURL, kid); ok {
		return key, nil
	}

	// Miss: refetch once. Rotated-in keys appear, everything else is a
	// genuinely unknown key ID.
	keys, err := c.refresh(ctx, p)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, gwerrors.Newf(gwerrors.CodeKeyNotFound, "signing key %q not found for %s", kid, p.Name)
	}
	return key, nil
}

// Warm pre-fetches the provider's key set. Failures are returned but leave
// the cache usable; the next lookup retries.
func (c *Cache) Warm(ctx context.Context, p *provider.Provider) error {
	_, err := c.refresh(ctx, p)
	return err
}

func (c *Cache) cached(url, kid string) (*rsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[url]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	key, ok := e.keys[kid]
	return key, ok
}

func (c *Cache) refresh(ctx context.Context, p *provider.Provider) (map[string]*rsa.PublicKey, error) {
	v, err, _ := c.group.Do(p.JWKSURL, func() (any, error) {
		body, err := c.fetcher.Fetch(ctx, p.JWKSURL)
		if err != nil {
			if gwerrors.IsGatewayError(err) {
				return nil, err
			}
			return nil, gwerrors.Wrap(err, p.ServiceErrorCode, "fetch signing keys for "+string(p.Name))
		}

		keys, err := parseJWKS(body)
		if err != nil {
			return nil, gwerrors.Wrap(err, gwerrors.CodeKeyDiscoveryError, "parse signing keys for "+string(p.Name))
		}

		c.mu.Lock()
		c.entries[p.JWKSURL] = entry{keys: keys, fetchedAt: c.now()}
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]*rsa.PublicKey), nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// parseJWKS extracts RSA public keys from a JWKS document. Non-RSA entries
// are skipped; an empty result is an error since verification would be
// impossible.
func parseJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	var doc jwksDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := rsaKeyFrom(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks document contains no usable RSA keys")
	}
	return keys, nil
}

func rsaKeyFrom(k jwk) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(nBytes) == 0 || len(eBytes) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 1 {
		return nil, fmt.Errorf("invalid public exponent %d", e)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
