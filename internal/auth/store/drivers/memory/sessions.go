// Package memory is an in-process session store for single-instance
// deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type entry struct {
	session   domain.Session
	expiresAt time.Time
}

// Sessions implements store.Sessions and store.ExpirySweeper.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewSessions() *Sessions {
	return &Sessions{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (s *Sessions) WithClock(now func() time.Time) *Sessions {
	s.now = now
	return s
}

func (s *Sessions) GetSession(ctx context.Context, id string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, store.ErrNotFound
	}
	return e.session, nil
}

func (s *Sessions) PutSession(ctx context.Context, id string, sess domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = entry{session: sess, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Sessions) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *Sessions) IncrementPendingAttempts(ctx context.Context, id string, limit int) (domain.Pending2FA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return domain.Pending2FA{}, store.ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return domain.Pending2FA{}, store.ErrNotFound
	}
	p, ok := e.session.(domain.Pending2FA)
	if !ok {
		return domain.Pending2FA{}, store.ErrNotFound
	}

	p.Attempts++
	if p.Attempts >= limit {
		delete(s.entries, id)
		return p, nil
	}
	e.session = p
	s.entries[id] = e
	return p, nil
}

func (s *Sessions) Ping(ctx context.Context) error { return nil }

// DeleteExpired drops sessions whose TTL has passed.
func (s *Sessions) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
