// Package idx mints the ULIDs used as user ids and request ids. User ids
// sort by creation time, which keeps the users table append-mostly.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewUserID returns a fresh user id.
func NewUserID() string {
	return at(time.Now().UTC())
}

// NewRequestID returns an id for a request that arrived without one.
func NewRequestID() string {
	return at(time.Now().UTC())
}

func at(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ValidUserID reports whether s has the canonical form of a minted id.
// Token subjects are checked with it before touching the store.
func ValidUserID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// CreatedAt returns the time embedded in a user id, or the zero time.
func CreatedAt(id string) time.Time {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
