package user

import (
	"context"
	"fmt"
	"sync"

	"storygate/internal/auth/models"
	"storygate/pkg/platform/sentinel"
)

// InMemoryStore keeps users in memory for tests and development.
type InMemoryStore struct {
	mu       sync.RWMutex
	users    map[string]*models.User
	bySubKey map[string]string
}

// NewMemoryStore constructs an empty in-memory user store.
func NewMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:    make(map[string]*models.User),
		bySubKey: make(map[string]string),
	}
}

func subKey(provider models.Provider, subject string) string {
	return string(provider) + "\x00" + subject
}

func (s *InMemoryStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("user %s already exists: %w", user.ID, sentinel.ErrConflict)
	}
	key := subKey(user.Provider, user.Subject)
	if _, ok := s.bySubKey[key]; ok {
		return fmt.Errorf("identity %s/%s already linked: %w", user.Provider, user.Subject, sentinel.ErrConflict)
	}

	cp := *user
	s.users[user.ID] = &cp
	s.bySubKey[key] = user.ID
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return fmt.Errorf("user %s: %w", user.ID, sentinel.ErrNotFound)
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, sentinel.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) FindByProviderSubject(_ context.Context, provider models.Provider, subject string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySubKey[subKey(provider, subject)]
	if !ok {
		return nil, fmt.Errorf("identity %s/%s: %w", provider, subject, sentinel.ErrNotFound)
	}
	cp := *s.users[id]
	return &cp, nil
}
