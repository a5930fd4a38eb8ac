package http

import (
	"net/http"
	"time"
)

const DefaultSessionCookie = "sid"

// CookieConfig controls the session cookie. Secure is on in production.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

func (c CookieConfig) name() string {
	if c.Name == "" {
		return DefaultSessionCookie
	}
	return c.Name
}

// sessionID returns the session id from the request cookie, or "".
func (c CookieConfig) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (c CookieConfig) write(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(c.MaxAge.Seconds()),
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}
