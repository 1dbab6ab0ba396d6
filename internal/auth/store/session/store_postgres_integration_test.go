//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"storygate/internal/auth/store/session"
	"storygate/pkg/platform/sentinel"
	"storygate/pkg/testutil/containers"
)

const sessionsDDL = `
CREATE TABLE IF NOT EXISTS sessions (
    id                 TEXT PRIMARY KEY,
    user_id            TEXT NOT NULL,
    refresh_token_hash TEXT NOT NULL,
    device_id          TEXT NOT NULL DEFAULT '',
    device_type        TEXT NOT NULL DEFAULT '',
    platform           TEXT NOT NULL DEFAULT '',
    app_version        TEXT NOT NULL DEFAULT '',
    device_name        TEXT NOT NULL DEFAULT '',
    ip_address         TEXT NOT NULL DEFAULT '',
    created_at         TIMESTAMPTZ NOT NULL,
    last_used_at       TIMESTAMPTZ NOT NULL,
    expires_at         TIMESTAMPTZ NOT NULL,
    revoked            BOOLEAN NOT NULL DEFAULT FALSE,
    revoked_at         TIMESTAMPTZ
)`

type PostgresSessionStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *session.PostgresStore
}

func TestPostgresSessionStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSessionStoreSuite))
}

func (s *PostgresSessionStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), sessionsDDL)
	s.store = session.NewPostgres(s.pg.DB)
}

func (s *PostgresSessionStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), `TRUNCATE sessions`)
}

func (s *PostgresSessionStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	sess := makeSession("u1")

	s.Require().NoError(s.store.Create(ctx, sess))

	got, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(sess.UserID, got.UserID)
	s.Equal(sess.RefreshTokenHash, got.RefreshTokenHash)
	s.Equal(sess.Device.DeviceID, got.Device.DeviceID)
	s.Nil(got.RevokedAt)

	s.ErrorIs(s.store.Create(ctx, sess), sentinel.ErrConflict)
}

func (s *PostgresSessionStoreSuite) TestActiveByUserFiltersAndOrders() {
	ctx := context.Background()
	now := time.Now().UTC()

	oldest := makeSession("u1")
	oldest.CreatedAt = now.Add(-2 * time.Hour)
	newest := makeSession("u1")

	revoked := makeSession("u1")
	revoked.Revoked = true
	expired := makeSession("u1")
	expired.ExpiresAt = now.Add(-time.Minute)

	s.Require().NoError(s.store.Create(ctx, newest))
	s.Require().NoError(s.store.Create(ctx, oldest))
	s.Require().NoError(s.store.Create(ctx, revoked))
	s.Require().NoError(s.store.Create(ctx, expired))

	active, err := s.store.ActiveByUser(ctx, "u1", now)
	s.Require().NoError(err)
	s.Require().Len(active, 2)
	s.Equal(oldest.ID, active[0].ID)
	s.Equal(newest.ID, active[1].ID)
}

func (s *PostgresSessionStoreSuite) TestUpdateAndRevoke() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	sess := makeSession("u1")
	s.Require().NoError(s.store.Create(ctx, sess))

	sess.Revoked = true
	sess.RevokedAt = &now
	s.Require().NoError(s.store.Update(ctx, sess))

	got, err := s.store.FindByID(ctx, sess.ID)
	s.Require().NoError(err)
	s.True(got.Revoked)
	s.Require().NotNil(got.RevokedAt)

	s.ErrorIs(s.store.Update(ctx, makeSession("ghost")), sentinel.ErrNotFound)
}

func (s *PostgresSessionStoreSuite) TestRevokeAllByUser() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Create(ctx, makeSession("u1")))
	s.Require().NoError(s.store.Create(ctx, makeSession("u1")))
	s.Require().NoError(s.store.Create(ctx, makeSession("u2")))

	revoked, err := s.store.RevokeAllByUser(ctx, "u1", now)
	s.Require().NoError(err)
	s.Require().Len(revoked, 2)
	for _, sess := range revoked {
		s.Equal("u1", sess.UserID)
		s.True(sess.Revoked)
		s.Require().NotNil(sess.RevokedAt)
	}

	revoked, err = s.store.RevokeAllByUser(ctx, "u1", now)
	s.Require().NoError(err)
	s.Empty(revoked)
}
