// Package store defines the persistence ports for the auth domain.
//
// Error contract, shared by every implementation:
//   - sentinel.ErrNotFound when the requested record does not exist
//   - sentinel.ErrConflict when a uniqueness constraint is violated
//   - wrapped infrastructure errors otherwise
package store

import (
	"context"
	"time"

	"storygate/internal/auth/models"
)

// UserStore persists accounts keyed by ID and by (provider, subject).
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByProviderSubject(ctx context.Context, provider models.Provider, subject string) (*models.User, error)
}

// SessionStore persists refresh-token-backed sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	// ActiveByUser returns the user's unrevoked, unexpired sessions ordered
	// oldest first.
	ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	// RevokeAllByUser marks every active session revoked and returns the
	// sessions it revoked.
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*models.Session, error)
}
