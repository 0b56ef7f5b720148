package prescription

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/automedic/clinic/internal/session"
)

// DefaultDraftTTL is how long an untouched draft is kept.
const DefaultDraftTTL = 12 * time.Hour

// ErrDraftNotFound is returned for unknown, expired, or foreign drafts.
var ErrDraftNotFound = errors.New("prescription draft not found")

// DraftStore holds in-progress workflows for this process.
// A draft is visible only to the doctor who created it.
type DraftStore struct {
	mu     sync.Mutex
	drafts map[string]*Workflow
	ttl    time.Duration
	now    func() time.Time
}

// NewDraftStore creates an empty store. A zero ttl means DefaultDraftTTL.
func NewDraftStore(ttl time.Duration) *DraftStore {
	if ttl <= 0 {
		ttl = DefaultDraftTTL
	}
	return &DraftStore{
		drafts: make(map[string]*Workflow),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Create starts a new draft for patientID owned by the session's doctor.
func (s *DraftStore) Create(sess session.Session, patientID string) (*Workflow, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}

	w := NewWorkflow(uuid.NewString(), patientID, sess.DoctorID, NewCandidate())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.drafts[w.ID()] = w
	return w, nil
}

// Get returns the draft if it exists and belongs to the session's doctor.
func (s *DraftStore) Get(sess session.Session, id string) (*Workflow, error) {
	if err := session.Require(sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.drafts[id]
	if !ok || w.DoctorID() != sess.DoctorID {
		return nil, ErrDraftNotFound
	}
	if s.expired(w) {
		delete(s.drafts, id)
		return nil, ErrDraftNotFound
	}
	return w, nil
}

// Discard removes a draft.
func (s *DraftStore) Discard(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, id)
}

// Len returns the number of live drafts.
func (s *DraftStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return len(s.drafts)
}

func (s *DraftStore) pruneLocked() {
	for id, w := range s.drafts {
		if s.expired(w) {
			delete(s.drafts, id)
		}
	}
}

// expired reports whether w has been idle past the TTL. In-flight drafts never expire.
func (s *DraftStore) expired(w *Workflow) bool {
	if w.State() == StateSubmitting {
		return false
	}
	return s.now().Sub(w.UpdatedAt()) > s.ttl
}
