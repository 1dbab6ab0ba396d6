// Package tokenhash hashes refresh tokens for storage at rest so a leaked
// session store cannot be replayed against the API.
package tokenhash

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces and verifies bcrypt hashes of refresh tokens. Tokens are
// pre-hashed with SHA-256 because bcrypt only considers the first 72 bytes
// of input and signed tokens are longer than that.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. A cost below the
// bcrypt minimum selects the library default.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns the bcrypt hash of token.
func (h *Hasher) Hash(token string) (string, error) {
	sum := sha256.Sum256([]byte(token))
	out, err := bcrypt.GenerateFromPassword(sum[:], h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether token matches hash.
func (h *Hasher) Verify(token, hash string) bool {
	sum := sha256.Sum256([]byte(token))
	return bcrypt.CompareHashAndPassword([]byte(hash), sum[:]) == nil
}
