//go:build integration

package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"storygate/internal/auth/models"
	"storygate/internal/auth/store/user"
	"storygate/pkg/platform/sentinel"
	"storygate/pkg/testutil/containers"
)

const usersDDL = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    provider    TEXT NOT NULL,
    subject     TEXT NOT NULL,
    email       TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    picture_url TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (provider, subject)
)`

type PostgresUserStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *user.PostgresStore
}

func TestPostgresUserStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresUserStoreSuite))
}

func (s *PostgresUserStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Exec(s.T(), usersDDL)
	s.store = user.NewPostgres(s.pg.DB)
}

func (s *PostgresUserStoreSuite) SetupTest() {
	s.pg.Exec(s.T(), `TRUNCATE users`)
}

func makeUser(subject string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		ID:        uuid.NewString(),
		Provider:  models.ProviderGoogle,
		Subject:   subject,
		Email:     subject + "@example.com",
		Name:      "Test User",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *PostgresUserStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	u := makeUser("sub-1")

	s.Require().NoError(s.store.Create(ctx, u))

	byID, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u.Subject, byID.Subject)
	s.Equal(u.Email, byID.Email)
	s.True(byID.Active)

	bySub, err := s.store.FindByProviderSubject(ctx, models.ProviderGoogle, "sub-1")
	s.Require().NoError(err)
	s.Equal(u.ID, bySub.ID)
}

func (s *PostgresUserStoreSuite) TestDuplicateIdentityConflicts() {
	ctx := context.Background()

	s.Require().NoError(s.store.Create(ctx, makeUser("sub-1")))
	s.ErrorIs(s.store.Create(ctx, makeUser("sub-1")), sentinel.ErrConflict)
}

func (s *PostgresUserStoreSuite) TestFindMissing() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByProviderSubject(ctx, models.ProviderApple, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresUserStoreSuite) TestUpdate() {
	ctx := context.Background()
	u := makeUser("sub-1")
	s.Require().NoError(s.store.Create(ctx, u))

	u.Name = "Renamed"
	u.Active = false
	u.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.Update(ctx, u))

	got, err := s.store.FindByID(ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.False(got.Active)

	s.ErrorIs(s.store.Update(ctx, makeUser("ghost")), sentinel.ErrNotFound)
}
