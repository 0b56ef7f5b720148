// Package session resolves and maintains the authenticated doctor behind a request.
package session

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Cookie names holding the credential pair.
const (
	TokenCookie    = "auth_token"
	DoctorIDCookie = "doctor_id"
)

// DefaultTTL is how long a login stays valid.
const DefaultTTL = 7 * 24 * time.Hour

// User-facing login failure messages.
const (
	MsgInvalidCredentials = "Invalid email or password"
	MsgLoginUnavailable   = "An unexpected error occurred."
)

var (
	// ErrUnauthorized is returned by any operation that needs a session when none exists.
	ErrUnauthorized = errors.New("unauthorized: no active session")
	// ErrInvalidCredentials is returned by an Authenticator when no account matches.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Session is the authenticated doctor identity.
type Session struct {
	Token    string `json:"-"`
	DoctorID string `json:"doctorId"`
}

// Valid reports whether both halves of the credential pair are present.
// Whitespace-only values count as absent.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.DoctorID) != ""
}

// Require returns ErrUnauthorized unless s is a complete session.
func Require(s Session) error {
	if !s.Valid() {
		return ErrUnauthorized
	}
	return nil
}

// AuthenticationError is a login failure carrying the message shown to the user.
type AuthenticationError struct {
	Message string
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

type contextKey string

const sessionKey contextKey = "session"

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext returns the session resolved for the request, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok || !s.Valid() {
		return Session{}, false
	}
	return s, true
}
