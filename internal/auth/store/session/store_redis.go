package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
)

// RedisStore persists sessions in Redis. This is the production-recommended
// implementation for distributed deployments: session records carry a TTL so
// expired logins clean themselves up.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed session store.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string       { return sessionKeyPrefix + id }
func userIndexKey(userID string) string { return userIndexPrefix + userID }

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired: %w", session.ID, sentinel.ErrExpired)
	}

	ok, err := s.client.SetNX(ctx, sessionKey(session.ID), payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userIndexKey(session.UserID), session.ID)
	pipe.Expire(ctx, userIndexKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session index: %w", err)
	}

	var out []*models.Session
	var stale []any
	for _, id := range ids {
		sess, err := s.FindByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.Active(now) {
			out = append(out, sess)
		}
	}

	// Opportunistically drop index entries whose sessions expired out of Redis
	if len(stale) > 0 {
		s.client.SRem(ctx, userIndexKey(userID), stale...)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, session *models.Session) error {
	ttl, err := s.client.TTL(ctx, sessionKey(session.ID)).Result()
	if err != nil {
		return fmt.Errorf("load session ttl: %w", err)
	}
	if ttl < 0 {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	// Rotation extends ExpiresAt, so the key TTL must grow with it. Updates
	// that leave ExpiresAt alone (revocation) keep the original expiry.
	if newTTL := time.Until(session.ExpiresAt); newTTL > ttl {
		if err := s.client.Set(ctx, sessionKey(session.ID), payload, newTTL).Err(); err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		s.client.ExpireGT(ctx, userIndexKey(session.UserID), newTTL)
		return nil
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]*models.Session, error) {
	active, err := s.ActiveByUser(ctx, userID, at)
	if err != nil {
		return nil, err
	}
	for _, sess := range active {
		sess.Revoked = true
		t := at
		sess.RevokedAt = &t
		if err := s.Update(ctx, sess); err != nil {
			return nil, err
		}
	}
	return active, nil
}
