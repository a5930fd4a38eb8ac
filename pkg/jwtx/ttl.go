package jwtx

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTTL parses token lifetimes such as "15m", "1h30m" or "7d". It is
// time.ParseDuration plus a leading whole-day component, and it is the only
// duration parser used for token expiry so the exp claim and any cached
// expiry never disagree.
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("jwtx: empty ttl")
	}

	var days time.Duration
	if i := strings.IndexByte(s, 'd'); i >= 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("jwtx: invalid ttl %q", s)
		}
		days = time.Duration(n) * 24 * time.Hour
		s = s[i+1:]
	}

	var rest time.Duration
	if s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("jwtx: invalid ttl: %w", err)
		}
		rest = d
	}

	total := days + rest
	if total <= 0 {
		return 0, fmt.Errorf("jwtx: ttl must be positive")
	}
	return total, nil
}

// TTL is a duration that unmarshals through ParseTTL, for use in config structs.
type TTL time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TTL) UnmarshalText(text []byte) error {
	d, err := ParseTTL(string(text))
	if err != nil {
		return err
	}
	*t = TTL(d)
	return nil
}

// Duration returns the value as a time.Duration.
func (t TTL) Duration() time.Duration { return time.Duration(t) }

func (t TTL) String() string { return time.Duration(t).String() }
