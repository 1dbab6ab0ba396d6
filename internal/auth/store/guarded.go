package store

import (
	"context"
	"errors"
	"time"

	"storygate/internal/auth/models"
	"storygate/internal/platform/circuit"
	"storygate/pkg/platform/sentinel"
)

// GuardedSessionStore runs a SessionStore under a circuit breaker so a
// failing session backend sheds load instead of piling up requests.
// Not-found and conflict results are domain outcomes and never count
// against the breaker.
type GuardedSessionStore struct {
	next    SessionStore
	breaker *circuit.Breaker
}

// NewGuardedSessionStore wraps next with breaker.
func NewGuardedSessionStore(next SessionStore, breaker *circuit.Breaker) *GuardedSessionStore {
	return &GuardedSessionStore{next: next, breaker: breaker}
}

func (g *GuardedSessionStore) Create(ctx context.Context, session *models.Session) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Create(ctx, session)
	})
}

func (g *GuardedSessionStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var sess *models.Session
	err := g.do(ctx, func(ctx context.Context) error {
		var ferr error
		sess, ferr = g.next.FindByID(ctx, id)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (g *GuardedSessionStore) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	var sessions []*models.Session
	err := g.do(ctx, func(ctx context.Context) error {
		var ferr error
		sessions, ferr = g.next.ActiveByUser(ctx, userID, now)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (g *GuardedSessionStore) Update(ctx context.Context, session *models.Session) error {
	return g.do(ctx, func(ctx context.Context) error {
		return g.next.Update(ctx, session)
	})
}

func (g *GuardedSessionStore) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*models.Session, error) {
	var revoked []*models.Session
	err := g.do(ctx, func(ctx context.Context) error {
		var ferr error
		revoked, ferr = g.next.RevokeAllByUser(ctx, userID, at)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return revoked, nil
}

// do runs op under the breaker, shielding the breaker from domain
// outcomes while still surfacing them to the caller.
func (g *GuardedSessionStore) do(ctx context.Context, op func(ctx context.Context) error) error {
	var opErr error
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		opErr = op(ctx)
		if errors.Is(opErr, sentinel.ErrNotFound) || errors.Is(opErr, sentinel.ErrConflict) {
			return nil
		}
		return opErr
	})
	if err != nil {
		return err
	}
	return opErr
}
