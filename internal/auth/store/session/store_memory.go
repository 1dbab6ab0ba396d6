package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/sentinel"
)

// InMemoryStore keeps sessions in memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

// NewMemoryStore constructs an empty in-memory session store.
func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*models.Session)}
}

func (s *InMemoryStore) Create(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return fmt.Errorf("session %s already exists: %w", session.ID, sentinel.ErrConflict)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *sess
	return &cp, nil
}

func (s *InMemoryStore) ActiveByUser(_ context.Context, userID string, now time.Time) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active(now) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; !ok {
		return fmt.Errorf("session %s: %w", session.ID, sentinel.ErrNotFound)
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *InMemoryStore) RevokeAllByUser(_ context.Context, userID string, at time.Time) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var revoked []*models.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || !sess.Active(at) {
			continue
		}
		sess.Revoked = true
		t := at
		sess.RevokedAt = &t
		cp := *sess
		revoked = append(revoked, &cp)
	}
	sort.Slice(revoked, func(i, j int) bool {
		return revoked[i].CreatedAt.Before(revoked[j].CreatedAt)
	})
	return revoked, nil
}
