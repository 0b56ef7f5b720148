package prescription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/automedic/clinic/internal/session"
)

// State is the authoring workflow state.
type State string

const (
	StateEditing    State = "editing"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
)

// MsgSubmitFailed is the notice shown when the backend did not persist a submission.
const MsgSubmitFailed = "Failed to create prescription."

var (
	ErrLastMedication     = errors.New("at least one medication entry must remain")
	ErrMedicationIndex    = errors.New("medication index out of range")
	ErrSubmissionInFlight = errors.New("prescription submission already in progress")
	ErrNotEditable        = errors.New("prescription is no longer editable")
)

// Submitter persists a validated prescription and returns its id.
type Submitter interface {
	Submit(ctx context.Context, sess session.Session, patientID string, p *Prescription) (string, error)
}

// Workflow is the authoring state of one prescription for one patient.
// All methods are safe for concurrent use.
type Workflow struct {
	mu sync.Mutex

	id        string
	patientID string
	doctorID  string

	state          State
	candidate      Candidate
	errors         FieldErrors
	notice         string
	prescriptionID string

	createdAt time.Time
	updatedAt time.Time
}

// NewWorkflow starts authoring with c as the initial form state.
func NewWorkflow(id, patientID, doctorID string, c Candidate) *Workflow {
	now := time.Now().UTC()
	return &Workflow{
		id:        id,
		patientID: patientID,
		doctorID:  doctorID,
		state:     StateEditing,
		candidate: c.Clone(),
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the workflow ID
func (w *Workflow) ID() string { return w.id }

// PatientID returns the patient the prescription is for
func (w *Workflow) PatientID() string { return w.patientID }

// DoctorID returns the doctor who started the workflow
func (w *Workflow) DoctorID() string { return w.doctorID }

// State returns the current state
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// UpdatedAt returns the time of the last change
func (w *Workflow) UpdatedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.updatedAt
}

// Snapshot is a point-in-time copy of a workflow.
type Snapshot struct {
	ID             string      `json:"id"`
	PatientID      string      `json:"patientId"`
	State          State       `json:"state"`
	Prescription   Candidate   `json:"prescription"`
	Errors         FieldErrors `json:"errors,omitempty"`
	Notice         string      `json:"notice,omitempty"`
	PrescriptionID string      `json:"prescriptionId,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs FieldErrors
	if len(w.errors) > 0 {
		errs = make(FieldErrors, len(w.errors))
		for k, v := range w.errors {
			errs[k] = v
		}
	}
	return Snapshot{
		ID:             w.id,
		PatientID:      w.patientID,
		State:          w.state,
		Prescription:   w.candidate.Clone(),
		Errors:         errs,
		Notice:         w.notice,
		PrescriptionID: w.prescriptionID,
		CreatedAt:      w.createdAt,
		UpdatedAt:      w.updatedAt,
	}
}

// Replace overwrites every field with c. The form always keeps at least one
// medication entry, so an empty list becomes a single empty entry.
func (w *Workflow) Replace(c Candidate) error {
	return w.edit(func(cur *Candidate) error {
		next := c.Clone()
		if len(next.Medications) == 0 {
			next.Medications = []Medication{{}}
		}
		*cur = next
		return nil
	})
}

// AppendMedication adds an empty medication entry and returns its index.
func (w *Workflow) AppendMedication() (int, error) {
	var idx int
	err := w.edit(func(cur *Candidate) error {
		cur.Medications = append(cur.Medications, Medication{})
		idx = len(cur.Medications) - 1
		return nil
	})
	return idx, err
}

// RemoveMedication deletes the entry at i. Removing the only entry is refused
// and leaves the list unchanged.
func (w *Workflow) RemoveMedication(i int) error {
	return w.edit(func(cur *Candidate) error {
		if i < 0 || i >= len(cur.Medications) {
			return fmt.Errorf("remove medication %d of %d: %w", i, len(cur.Medications), ErrMedicationIndex)
		}
		if len(cur.Medications) == 1 {
			return ErrLastMedication
		}
		cur.Medications = append(cur.Medications[:i:i], cur.Medications[i+1:]...)
		return nil
	})
}

func (w *Workflow) edit(fn func(*Candidate) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateSubmitting:
		return ErrSubmissionInFlight
	case StateSucceeded:
		return ErrNotEditable
	}

	if err := fn(&w.candidate); err != nil {
		return err
	}
	w.notice = ""
	w.updatedAt = time.Now().UTC()
	return nil
}

// Submit validates the current form and hands it to s.
//
// Validation failures return the workflow to editing with field errors and
// make no network call. While a submission is in flight any further Submit or
// edit is rejected with ErrSubmissionInFlight. A failed submission keeps all
// entered data and may be edited or resubmitted; a successful one discards it.
func (w *Workflow) Submit(ctx context.Context, sess session.Session, s Submitter) (string, error) {
	if err := session.Require(sess); err != nil {
		return "", err
	}

	w.mu.Lock()
	switch w.state {
	case StateSubmitting:
		w.mu.Unlock()
		return "", ErrSubmissionInFlight
	case StateSucceeded:
		w.mu.Unlock()
		return "", ErrNotEditable
	}

	candidate := w.candidate.Clone()
	p, err := Validate(&candidate)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			w.errors = verr.Fields
		}
		w.state = StateEditing
		w.notice = ""
		w.updatedAt = time.Now().UTC()
		w.mu.Unlock()
		return "", err
	}

	w.state = StateSubmitting
	w.errors = nil
	w.notice = ""
	w.mu.Unlock()

	id, err := s.Submit(ctx, sess, w.patientID, p)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.updatedAt = time.Now().UTC()

	if err != nil {
		// Failure is transient: back to editing with the form intact.
		w.state = StateEditing
		w.notice = MsgSubmitFailed
		return "", err
	}

	w.state = StateSucceeded
	w.prescriptionID = id
	w.candidate = Candidate{}
	return id, nil
}
