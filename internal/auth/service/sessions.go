package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
)

const (
	DefaultSessionTTL    = 7 * 24 * time.Hour
	DefaultPendingTTL    = 5 * time.Minute
	MaxTwoFactorAttempts = 5
)

var ErrNoPendingSession = errors.New("no pending two-factor session")

// SessionManager moves a session id between its two states. A session is
// either Pending2FA or Authenticated and every write replaces the whole
// record.
type SessionManager struct {
	Store       store.Sessions
	TTL         time.Duration
	PendingTTL  time.Duration
	MaxAttempts int

	now func() time.Time
}

func NewSessionManager(st store.Sessions, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		Store:       st,
		TTL:         ttl,
		PendingTTL:  DefaultPendingTTL,
		MaxAttempts: MaxTwoFactorAttempts,
		now:         time.Now,
	}
}

// WithClock replaces the time source used for pending expiries.
func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// NewID returns a fresh opaque session id.
func (m *SessionManager) NewID() (string, error) {
	return cryptox.GenerateToken(cryptox.TokenSize256)
}

// BeginPending2FA overwrites the session with a fresh challenge.
func (m *SessionManager) BeginPending2FA(ctx context.Context, sid, userID, email string) (domain.Pending2FA, error) {
	p := domain.Pending2FA{
		UserID:    userID,
		Email:     email,
		ExpiresAt: m.now().Add(m.PendingTTL).UTC(),
	}
	if err := m.Store.PutSession(ctx, sid, p, m.PendingTTL); err != nil {
		return domain.Pending2FA{}, fmt.Errorf("store pending session: %w", err)
	}
	return p, nil
}

// CompleteAuthentication overwrites the session, dropping any pending state.
func (m *SessionManager) CompleteAuthentication(ctx context.Context, sid string, a domain.Authenticated) error {
	if err := m.Store.PutSession(ctx, sid, a, m.TTL); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// ReadPending2FA returns ErrNoPendingSession when the session is missing,
// authenticated or past its deadline.
func (m *SessionManager) ReadPending2FA(ctx context.Context, sid string) (domain.Pending2FA, error) {
	if sid == "" {
		return domain.Pending2FA{}, ErrNoPendingSession
	}
	s, err := m.Store.GetSession(ctx, sid)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Pending2FA{}, ErrNoPendingSession
	}
	if err != nil {
		return domain.Pending2FA{}, fmt.Errorf("load session: %w", err)
	}

	p, ok := s.(domain.Pending2FA)
	if !ok || p.Expired(m.now()) {
		return domain.Pending2FA{}, ErrNoPendingSession
	}
	return p, nil
}

// ReserveAttempt counts a second-factor attempt before the code is checked,
// so concurrent guesses draw from one budget and a late failure never writes
// over a session that has moved on. The attempt that reaches MaxAttempts
// clears the challenge. It returns the pending state and the attempts left,
// or ErrNoPendingSession when the session is missing, expired, exhausted or
// already authenticated.
func (m *SessionManager) ReserveAttempt(ctx context.Context, sid string) (domain.Pending2FA, int, error) {
	if sid == "" {
		return domain.Pending2FA{}, 0, ErrNoPendingSession
	}
	p, err := m.Store.IncrementPendingAttempts(ctx, sid, m.MaxAttempts)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Pending2FA{}, 0, ErrNoPendingSession
	}
	if err != nil {
		return domain.Pending2FA{}, 0, fmt.Errorf("count attempt: %w", err)
	}
	if p.Expired(m.now()) {
		return domain.Pending2FA{}, 0, ErrNoPendingSession
	}
	return p, max(m.MaxAttempts-p.Attempts, 0), nil
}

// Current returns store.ErrNotFound when there is no live session.
func (m *SessionManager) Current(ctx context.Context, sid string) (domain.Session, error) {
	if sid == "" {
		return nil, store.ErrNotFound
	}
	return m.Store.GetSession(ctx, sid)
}

func (m *SessionManager) Destroy(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	if err := m.Store.DeleteSession(ctx, sid); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
