package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth struct {
	session Session
	err     error
	calls   int
}

func (s *stubAuth) Authenticate(ctx context.Context, email, password string) (Session, error) {
	s.calls++
	return s.session, s.err
}

func newStore(t *testing.T, cookies ...*http.Cookie) (*CookieStore, *httptest.ResponseRecorder) {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	w := httptest.NewRecorder()
	return NewCookieStore(w, r, false), w
}

func cookiesByName(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestLogin_WritesBothCookies(t *testing.T) {
	auth := &stubAuth{session: Session{Token: "tok-1", DoctorID: "doc-1"}}
	m := NewManager(auth, 0, nil, nil)
	store, w := newStore(t)

	require.NoError(t, m.Login(context.Background(), store, "doctor@example.com", "pw"))

	got, ok := m.Get(store)
	require.True(t, ok)
	assert.Equal(t, "doc-1", got.DoctorID)

	cookies := cookiesByName(w)
	require.Contains(t, cookies, TokenCookie)
	require.Contains(t, cookies, DoctorIDCookie)
	assert.Equal(t, "tok-1", cookies[TokenCookie].Value)
	assert.True(t, cookies[TokenCookie].HttpOnly)
	assert.Equal(t, int(DefaultTTL.Seconds()), cookies[DoctorIDCookie].MaxAge)
}

func TestLogin_InvalidCredentialsLeavesStoreUntouched(t *testing.T) {
	auth := &stubAuth{err: ErrInvalidCredentials}
	m := NewManager(auth, 0, nil, nil)
	store, w := newStore(t,
		&http.Cookie{Name: TokenCookie, Value: "old"},
		&http.Cookie{Name: DoctorIDCookie, Value: "doc-old"},
	)

	err := m.Login(context.Background(), store, "nobody@example.com", "wrong")

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgInvalidCredentials, authErr.Message)
	assert.Empty(t, w.Result().Cookies())

	s, ok := m.Get(store)
	require.True(t, ok)
	assert.Equal(t, "doc-old", s.DoctorID)
}

func TestLogin_TransportFailureIsGeneric(t *testing.T) {
	auth := &stubAuth{err: errors.New("dial tcp: connection refused")}
	m := NewManager(auth, 0, nil, nil)
	store, w := newStore(t)

	err := m.Login(context.Background(), store, "doctor@example.com", "pw")

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgLoginUnavailable, authErr.Message)
	assert.Empty(t, w.Result().Cookies())
}

func TestLogin_BlankInputNeverReachesBackend(t *testing.T) {
	auth := &stubAuth{}
	m := NewManager(auth, 0, nil, nil)
	store, _ := newStore(t)

	err := m.Login(context.Background(), store, "  ", "")
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, auth.calls)
}

func TestLogout_IsIdempotent(t *testing.T) {
	m := NewManager(&stubAuth{}, 0, nil, nil)
	store, w := newStore(t,
		&http.Cookie{Name: TokenCookie, Value: "tok"},
		&http.Cookie{Name: DoctorIDCookie, Value: "doc-1"},
	)

	m.Logout(store)
	m.Logout(store)

	_, ok := m.Get(store)
	assert.False(t, ok)
	for _, c := range w.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}

	empty, _ := newStore(t)
	assert.NotPanics(t, func() { m.Logout(empty) })
}

func TestGet_PartialPairIsAbsent(t *testing.T) {
	m := NewManager(&stubAuth{}, 0, nil, nil)

	store, _ := newStore(t, &http.Cookie{Name: TokenCookie, Value: "tok"})
	_, ok := m.Get(store)
	assert.False(t, ok)

	store, _ = newStore(t, &http.Cookie{Name: DoctorIDCookie, Value: "doc-1"})
	_, ok = m.Get(store)
	assert.False(t, ok)
}

func TestGet_BlankPairIsAbsent(t *testing.T) {
	m := NewManager(&stubAuth{}, 0, nil, nil)

	store, _ := newStore(t,
		&http.Cookie{Name: TokenCookie, Value: " "},
		&http.Cookie{Name: DoctorIDCookie, Value: "doc-1"})
	_, ok := m.Get(store)
	assert.False(t, ok)
	assert.ErrorIs(t, Require(Session{Token: "tok", DoctorID: "\t"}), ErrUnauthorized)
}

func TestLogin_BlankTokenFromBackendIsRejected(t *testing.T) {
	auth := &stubAuth{session: Session{Token: "  ", DoctorID: "doc-1"}}
	m := NewManager(auth, 0, nil, nil)
	store, w := newStore(t)

	err := m.Login(context.Background(), store, "doctor@example.com", "pw")

	var aerr *AuthenticationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, MsgLoginUnavailable, aerr.Message)
	assert.Empty(t, w.Result().Cookies())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := NewContext(context.Background(), Session{Token: "t", DoctorID: "d"})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "d", s.DoctorID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	assert.ErrorIs(t, Require(Session{DoctorID: "d"}), ErrUnauthorized)
}
