package session

import (
	"net/http"
	"time"
)

// Store persists the credential pair for one client.
// Save and Clear always write both halves together.
type Store interface {
	Load() (Session, bool)
	Save(s Session, ttl time.Duration)
	Clear()
}

// CookieStore keeps the session in two HTTP-only cookies.
// Writes made during the request are visible to later Loads in the same request.
type CookieStore struct {
	w      http.ResponseWriter
	r      *http.Request
	secure bool

	written bool
	pending Session
}

// NewCookieStore binds a store to a single request/response pair.
func NewCookieStore(w http.ResponseWriter, r *http.Request, secure bool) *CookieStore {
	return &CookieStore{w: w, r: r, secure: secure}
}

// Load reads both cookies; a partial pair counts as no session.
func (c *CookieStore) Load() (Session, bool) {
	if c.written {
		return c.pending, c.pending.Valid()
	}

	token, err := c.r.Cookie(TokenCookie)
	if err != nil {
		return Session{}, false
	}
	doctorID, err := c.r.Cookie(DoctorIDCookie)
	if err != nil {
		return Session{}, false
	}

	s := Session{Token: token.Value, DoctorID: doctorID.Value}
	if !s.Valid() {
		return Session{}, false
	}
	return s, true
}

// Save writes both cookies with the given lifetime.
func (c *CookieStore) Save(s Session, ttl time.Duration) {
	expires := time.Now().Add(ttl)
	http.SetCookie(c.w, c.cookie(TokenCookie, s.Token, int(ttl.Seconds()), expires))
	http.SetCookie(c.w, c.cookie(DoctorIDCookie, s.DoctorID, int(ttl.Seconds()), expires))
	c.written = true
	c.pending = s
}

// Clear expires both cookies.
func (c *CookieStore) Clear() {
	http.SetCookie(c.w, c.cookie(TokenCookie, "", -1, time.Unix(0, 0)))
	http.SetCookie(c.w, c.cookie(DoctorIDCookie, "", -1, time.Unix(0, 0)))
	c.written = true
	c.pending = Session{}
}

func (c *CookieStore) cookie(name, value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
