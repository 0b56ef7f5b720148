package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/observability/metrics"
)

// Authenticator verifies a credential pair against the backend.
// It returns ErrInvalidCredentials when no account matches.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Session, error)
}

// Manager implements login, logout and session lookup.
type Manager struct {
	auth    Authenticator
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewManager creates a session manager. A zero ttl means DefaultTTL.
func NewManager(auth Authenticator, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{auth: auth, ttl: ttl, metrics: m, logger: logger}
}

// Get returns the stored session. It never touches the network.
func (m *Manager) Get(store Store) (Session, bool) {
	return store.Load()
}

// Login verifies the credentials and, on success, replaces the stored session.
// On any failure the store is left untouched.
func (m *Manager) Login(ctx context.Context, store Store, email, password string) error {
	ctx, span := otel.Tracer("session").Start(ctx, "session.login")
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		m.metrics.LoginAttempt("rejected")
		return &AuthenticationError{Message: MsgInvalidCredentials}
	}

	s, err := m.auth.Authenticate(ctx, email, password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		m.metrics.LoginAttempt("rejected")
		m.logger.Info("login rejected", zap.String("email", email))
		return &AuthenticationError{Message: MsgInvalidCredentials, Err: err}
	case err != nil:
		m.metrics.LoginAttempt("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication unavailable")
		m.logger.Error("login failed", zap.String("email", email), zap.Error(err))
		return &AuthenticationError{Message: MsgLoginUnavailable, Err: err}
	case !s.Valid():
		m.metrics.LoginAttempt("error")
		m.logger.Error("backend returned incomplete credentials", zap.String("email", email))
		return &AuthenticationError{
			Message: MsgLoginUnavailable,
			Err:     fmt.Errorf("incomplete credential pair for %s", email),
		}
	}

	store.Save(s, m.ttl)
	m.metrics.LoginAttempt("success")
	span.SetAttributes(attribute.String("doctor_id", s.DoctorID))
	m.logger.Info("doctor logged in", zap.String("doctor_id", s.DoctorID))
	return nil
}

// Logout clears the stored session. Calling it without a session is a no-op.
func (m *Manager) Logout(store Store) {
	if s, ok := store.Load(); ok {
		m.logger.Info("doctor logged out", zap.String("doctor_id", s.DoctorID))
	}
	store.Clear()
}
