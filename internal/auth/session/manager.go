// Package session manages refresh-token-backed sessions: creation under the
// per-user cap, refresh-token resolution, rotation, and revocation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storygate/internal/auth/models"
	"storygate/internal/auth/store"
	"storygate/internal/auth/tokenhash"
	gwerrors "storygate/pkg/gateway-errors"
	"storygate/pkg/platform/sentinel"
)

// Manager owns session lifecycle rules on top of a SessionStore.
type Manager struct {
	sessions   store.SessionStore
	hasher     *tokenhash.Hasher
	maxPerUser int
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMaxPerUser caps concurrent sessions per user.
func WithMaxPerUser(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPerUser = n
		}
	}
}

// WithTTL sets the session lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a Manager with a five-session default cap.
func NewManager(sessions store.SessionStore, hasher *tokenhash.Hasher, opts ...Option) *Manager {
	m := &Manager{
		sessions:   sessions,
		hasher:     hasher,
		maxPerUser: 5,
		ttl:        7 * 24 * time.Hour,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a new session holding the hash of refreshToken. sessionID
// may be empty, in which case one is generated; callers that embed the
// session ID in the refresh token pass it explicitly. When the user is at
// the session cap, the oldest active sessions are revoked first so the cap
// holds after insert.
func (m *Manager) Create(ctx context.Context, userID, sessionID, refreshToken string, device models.DeviceInfo) (*models.Session, error) {
	now := m.now().UTC()

	active, err := m.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, storeErr(err, "list sessions")
	}

	// Evict oldest first until one slot is free
	for len(active) >= m.maxPerUser {
		oldest := active[0]
		if err := m.revoke(ctx, oldest, now); err != nil {
			return nil, err
		}
		m.logger.InfoContext(ctx, "session evicted at cap",
			slog.String("user_id", userID),
			slog.String("session_id", oldest.ID),
		)
		active = active[1:]
	}

	hash, err := m.hasher.Hash(refreshToken)
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.CodeInternal, "hash refresh token")
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess := &models.Session{
		ID:               sessionID,
		UserID:           userID,
		RefreshTokenHash: hash,
		Device:           device,
		CreatedAt:        now,
		LastUsedAt:       now,
		ExpiresAt:        now.Add(m.ttl),
	}
	if err := m.sessions.Create(ctx, sess); err != nil {
		return nil, storeErr(err, "create session")
	}
	return sess, nil
}

// Resolve finds the session a refresh token belongs to and checks it is
// still redeemable. sessionID, when known from the token claims, gives a
// direct lookup that can distinguish a revoked session from an unknown
// token; otherwise the user's active sessions are scanned and compared.
func (m *Manager) Resolve(ctx context.Context, userID, sessionID, refreshToken string) (*models.Session, error) {
	now := m.now().UTC()

	if sessionID != "" {
		sess, err := m.sessions.FindByID(ctx, sessionID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, gwerrors.New(gwerrors.CodeInvalidRefreshToken, "refresh token does not match any session")
		}
		if err != nil {
			return nil, storeErr(err, "find session")
		}
		if sess.UserID != userID || !m.hasher.Verify(refreshToken, sess.RefreshTokenHash) {
			return nil, gwerrors.New(gwerrors.CodeInvalidRefreshToken, "refresh token does not match any session")
		}
		if sess.Revoked {
			return nil, gwerrors.New(gwerrors.CodeRefreshTokenRevoked, "session has been revoked")
		}
		if !now.Before(sess.ExpiresAt) {
			return nil, gwerrors.New(gwerrors.CodeSessionExpired, "session has expired")
		}
		return sess, nil
	}

	active, err := m.sessions.ActiveByUser(ctx, userID, now)
	if err != nil {
		return nil, storeErr(err, "list sessions")
	}
	for _, sess := range active {
		if m.hasher.Verify(refreshToken, sess.RefreshTokenHash) {
			return sess, nil
		}
	}
	return nil, gwerrors.New(gwerrors.CodeInvalidRefreshToken, "refresh token does not match any session")
}

// Rotate swaps the session's refresh token hash for the hash of newToken,
// making the previous token single-use, and extends the session expiry by a
// full TTL from now.
func (m *Manager) Rotate(ctx context.Context, sess *models.Session, newToken string) error {
	hash, err := m.hasher.Hash(newToken)
	if err != nil {
		return gwerrors.Wrap(err, gwerrors.CodeInternal, "hash refresh token")
	}
	now := m.now().UTC()
	sess.RefreshTokenHash = hash
	sess.LastUsedAt = now
	sess.ExpiresAt = now.Add(m.ttl)
	if err := m.sessions.Update(ctx, sess); err != nil {
		return storeErr(err, "rotate session")
	}
	return nil
}

// RevokeByRefreshToken revokes the session holding refreshToken. It is
// idempotent: an unknown or already-revoked token reports found=false with
// no error.
func (m *Manager) RevokeByRefreshToken(ctx context.Context, userID, sessionID, refreshToken string) (bool, error) {
	sess, err := m.Resolve(ctx, userID, sessionID, refreshToken)
	if err != nil {
		if gwerrors.Is(err, gwerrors.CodeInvalidRefreshToken) ||
			gwerrors.Is(err, gwerrors.CodeRefreshTokenRevoked) ||
			gwerrors.Is(err, gwerrors.CodeSessionExpired) {
			return false, nil
		}
		return false, err
	}
	if err := m.revoke(ctx, sess, m.now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

// RevokeAll revokes every active session of the user and returns the
// revoked sessions.
func (m *Manager) RevokeAll(ctx context.Context, userID string) ([]*models.Session, error) {
	revoked, err := m.sessions.RevokeAllByUser(ctx, userID, m.now().UTC())
	if err != nil {
		return nil, storeErr(err, "revoke sessions")
	}
	return revoked, nil
}

// ActiveSessions lists the user's active sessions as client-facing
// summaries. currentSessionID marks which entry belongs to the caller.
func (m *Manager) ActiveSessions(ctx context.Context, userID, currentSessionID string) ([]models.SessionSummary, error) {
	active, err := m.sessions.ActiveByUser(ctx, userID, m.now().UTC())
	if err != nil {
		return nil, storeErr(err, "list sessions")
	}

	out := make([]models.SessionSummary, 0, len(active))
	for _, sess := range active {
		out = append(out, models.SessionSummary{
			SessionID:    sess.ID,
			Device:       sess.Device.DeviceName,
			Platform:     sess.Device.Platform,
			AppVersion:   sess.Device.AppVersion,
			IPAddress:    sess.Device.IPAddress,
			CreatedAt:    sess.CreatedAt,
			LastActivity: sess.LastUsedAt,
			IsCurrent:    sess.ID == currentSessionID,
		})
	}
	return out, nil
}

func (m *Manager) revoke(ctx context.Context, sess *models.Session, at time.Time) error {
	sess.Revoked = true
	t := at
	sess.RevokedAt = &t
	if err := m.sessions.Update(ctx, sess); err != nil {
		return storeErr(err, "revoke session")
	}
	return nil
}

// storeErr wraps persistence failures in the downstream taxonomy band.
// Errors already carrying a code, such as a breaker-open rejection from a
// guarded store, pass through unchanged.
func storeErr(err error, op string) error {
	if gwerrors.IsGatewayError(err) {
		return err
	}
	return gwerrors.Wrap(err, gwerrors.CodeSessionStoreError, op)
}
