package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is the server-held state behind a session cookie. It is exactly one
// of Pending2FA or Authenticated; there is no combined shape.
type Session interface {
	Kind() SessionKind
	isSession()
}

type SessionKind string

const (
	SessionPending2FA    SessionKind = "pending_2fa"
	SessionAuthenticated SessionKind = "authenticated"
)

// Pending2FA is held between a correct password and a correct second factor.
type Pending2FA struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (Pending2FA) Kind() SessionKind { return SessionPending2FA }
func (Pending2FA) isSession() {}

// Expired reports whether the pending challenge can no longer be completed.
func (p Pending2FA) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Authenticated caches the most recently issued token pair for the browser.
type Authenticated struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

func (Authenticated) Kind() SessionKind { return SessionAuthenticated }
func (Authenticated) isSession() {}

type sessionEnvelope struct {
	Kind          SessionKind    `json:"kind"`
	Pending       *Pending2FA    `json:"pending,omitempty"`
	Authenticated *Authenticated `json:"authenticated,omitempty"`
}

// MarshalSession encodes a session with an explicit kind tag.
func MarshalSession(s Session) ([]byte, error) {
	env := sessionEnvelope{}
	switch v := s.(type) {
	case Pending2FA:
		env.Kind, env.Pending = v.Kind(), &v
	case *Pending2FA:
		env.Kind, env.Pending = v.Kind(), v
	case Authenticated:
		env.Kind, env.Authenticated = v.Kind(), &v
	case *Authenticated:
		env.Kind, env.Authenticated = v.Kind(), v
	default:
		return nil, fmt.Errorf("unknown session type %T", s)
	}
	return json.Marshal(env)
}

// UnmarshalSession decodes what MarshalSession produced.
func UnmarshalSession(data []byte) (Session, error) {
	var env sessionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	switch env.Kind {
	case SessionPending2FA:
		if env.Pending == nil {
			return nil, fmt.Errorf("decode session: %s without body", env.Kind)
		}
		return *env.Pending, nil
	case SessionAuthenticated:
		if env.Authenticated == nil {
			return nil, fmt.Errorf("decode session: %s without body", env.Kind)
		}
		return *env.Authenticated, nil
	default:
		return nil, fmt.Errorf("decode session: unknown kind %q", env.Kind)
	}
}
