package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/sentinel"
)

// Schema:
//
//	CREATE TABLE sessions (
//	    id                 TEXT PRIMARY KEY,
//	    user_id            TEXT NOT NULL REFERENCES users (id),
//	    refresh_token_hash TEXT NOT NULL,
//	    device_id          TEXT NOT NULL DEFAULT '',
//	    device_type        TEXT NOT NULL DEFAULT '',
//	    platform           TEXT NOT NULL DEFAULT '',
//	    app_version        TEXT NOT NULL DEFAULT '',
//	    device_name        TEXT NOT NULL DEFAULT '',
//	    ip_address         TEXT NOT NULL DEFAULT '',
//	    created_at         TIMESTAMPTZ NOT NULL,
//	    last_used_at       TIMESTAMPTZ NOT NULL,
//	    expires_at         TIMESTAMPTZ NOT NULL,
//	    revoked            BOOLEAN NOT NULL DEFAULT FALSE,
//	    revoked_at         TIMESTAMPTZ
//	);
//	CREATE INDEX sessions_user_active ON sessions (user_id) WHERE NOT revoked;

// PostgresStore persists sessions in PostgreSQL for deployments without Redis.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, refresh_token_hash,
			device_id, device_type, platform, app_version, device_name, ip_address,
			created_at, last_used_at, expires_at, revoked, revoked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		session.ID, session.UserID, session.RefreshTokenHash,
		session.Device.DeviceID, session.Device.DeviceType, session.Device.Platform,
		session.Device.AppVersion, session.Device.DeviceName, session.Device.IPAddress,
		session.CreatedAt, session.LastUsedAt, session.ExpiresAt, session.Revoked, session.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

const selectSession = `
	SELECT id, user_id, refresh_token_hash,
	       device_id, device_type, platform, app_version, device_name, ip_address,
	       created_at, last_used_at, expires_at, revoked, revoked_at
	FROM sessions`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, selectSession+` WHERE id = $1`, id)
	sess, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		selectSession+` WHERE user_id = $1 AND NOT revoked AND expires_at > $2 ORDER BY created_at ASC`,
		userID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, session *models.Session) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $2, last_used_at = $3, expires_at = $4, revoked = $5, revoked_at = $6
		WHERE id = $1`,
		session.ID, session.RefreshTokenHash, session.LastUsedAt, session.ExpiresAt,
		session.Revoked, session.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND NOT revoked AND expires_at > $2
		RETURNING id, user_id, refresh_token_hash,
		          device_id, device_type, platform, app_version, device_name, ip_address,
		          created_at, last_used_at, expires_at, revoked, revoked_at`,
		userID, at,
	)
	if err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	defer rows.Close()

	var revoked []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		revoked = append(revoked, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("revoke sessions: %w", err)
	}
	return revoked, nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	var sess models.Session
	var revokedAt sql.NullTime
	err := scan(
		&sess.ID, &sess.UserID, &sess.RefreshTokenHash,
		&sess.Device.DeviceID, &sess.Device.DeviceType, &sess.Device.Platform,
		&sess.Device.AppVersion, &sess.Device.DeviceName, &sess.Device.IPAddress,
		&sess.CreatedAt, &sess.LastUsedAt, &sess.ExpiresAt, &sess.Revoked, &revokedAt,
	)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		sess.RevokedAt = &revokedAt.Time
	}
	return &sess, nil
}
