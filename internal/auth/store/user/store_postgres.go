package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/sentinel"
)

// Schema:
//
//	CREATE TABLE users (
//	    id          TEXT PRIMARY KEY,
//	    provider    TEXT NOT NULL,
//	    subject     TEXT NOT NULL,
//	    email       TEXT NOT NULL DEFAULT '',
//	    name        TEXT NOT NULL DEFAULT '',
//	    picture_url TEXT NOT NULL DEFAULT '',
//	    active      BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at  TIMESTAMPTZ NOT NULL,
//	    updated_at  TIMESTAMPTZ NOT NULL,
//	    UNIQUE (provider, subject)
//	);

const uniqueViolation = "23505"

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed user store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, provider, subject, email, name, picture_url, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.Provider, user.Subject, user.Email, user.Name, user.PictureURL,
		user.Active, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("identity %s/%s already linked: %w", user.Provider, user.Subject, sentinel.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, user *models.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, picture_url = $4, active = $5, updated_at = $6
		WHERE id = $1`,
		user.ID, user.Email, user.Name, user.PictureURL, user.Active, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %s: %w", user.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, selectUser+` WHERE id = $1`, id), id)
}

func (s *PostgresStore) FindByProviderSubject(ctx context.Context, provider models.Provider, subject string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE provider = $1 AND subject = $2`, provider, subject)
	return s.scanOne(row, string(provider)+"/"+subject)
}

const selectUser = `
	SELECT id, provider, subject, email, name, picture_url, active, created_at, updated_at
	FROM users`

func (s *PostgresStore) scanOne(row *sql.Row, ref string) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Provider, &u.Subject, &u.Email, &u.Name, &u.PictureURL,
		&u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", ref, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
