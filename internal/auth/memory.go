package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps users and refresh tokens in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User // by lower-case email
	refresh map[string]bool // token -> revoked
	denied  map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		refresh: make(map[string]bool),
		denied:  make(map[string]time.Time),
		now:     time.Now,
	}
}

// PutUser adds or replaces a user.
func (s *MemoryStore) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(u.Email)] = u
}

func (s *MemoryStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) SaveRefreshToken(_ context.Context, _, token string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = false
	return nil
}

func (s *MemoryStore) RevokeRefreshToken(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked, ok := s.refresh[token]
	if !ok || revoked {
		return false, nil
	}
	s.refresh[token] = true
	return true, nil
}

func (s *MemoryStore) DenySession(_ context.Context, sid string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.denied {
		if !now.Before(exp) {
			delete(s.denied, k)
		}
	}
	if now.Before(until) {
		s.denied[sid] = until
	}
	return nil
}

func (s *MemoryStore) SessionDenied(_ context.Context, sid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exp, ok := s.denied[sid]
	return ok && s.now().Before(exp), nil
}
