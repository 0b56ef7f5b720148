package prescription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automedic/clinic/internal/session"
)

func TestDraftStore_OwnedByCreator(t *testing.T) {
	s := NewDraftStore(0)

	w, err := s.Create(sessionFor("doc-1"), "patient-1")
	require.NoError(t, err)
	assert.Len(t, w.Snapshot().Prescription.Medications, 1)

	got, err := s.Get(sessionFor("doc-1"), w.ID())
	require.NoError(t, err)
	assert.Same(t, w, got)

	_, err = s.Get(sessionFor("doc-2"), w.ID())
	assert.ErrorIs(t, err, ErrDraftNotFound)

	_, err = s.Create(session.Session{}, "patient-1")
	assert.ErrorIs(t, err, session.ErrUnauthorized)
}

func TestDraftStore_Expiry(t *testing.T) {
	s := NewDraftStore(time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	w, err := s.Create(sessionFor("doc-1"), "patient-1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	now = now.Add(2 * time.Hour)
	_, err = s.Get(sessionFor("doc-1"), w.ID())
	assert.ErrorIs(t, err, ErrDraftNotFound)
	assert.Zero(t, s.Len())
}

func TestDraftStore_Discard(t *testing.T) {
	s := NewDraftStore(0)
	w, err := s.Create(sessionFor("doc-1"), "patient-1")
	require.NoError(t, err)

	s.Discard(w.ID())

	_, err = s.Get(sessionFor("doc-1"), w.ID())
	assert.ErrorIs(t, err, ErrDraftNotFound)
}
