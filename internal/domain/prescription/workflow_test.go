package prescription

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automedic/clinic/internal/session"
)

func sessionFor(doctorID string) session.Session {
	return session.Session{Token: "token-" + doctorID, DoctorID: doctorID}
}

type fakeSubmitter struct {
	calls   int32
	id      string
	err     error
	started chan struct{}
	release chan struct{}
	got     *Prescription
}

func (f *fakeSubmitter) Submit(ctx context.Context, sess session.Session, patientID string, p *Prescription) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.got = p
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.id, f.err
}

func newFilledWorkflow() *Workflow {
	return NewWorkflow("draft-1", "patient-1", "doc-1", *validCandidate())
}

func TestRemoveMedication_LastEntryIsRefused(t *testing.T) {
	w := NewWorkflow("d", "p", "doc-1", NewCandidate())

	err := w.RemoveMedication(0)

	assert.ErrorIs(t, err, ErrLastMedication)
	assert.Len(t, w.Snapshot().Prescription.Medications, 1)
}

func TestAppendAndRemoveMedication_RepacksIndices(t *testing.T) {
	w := newFilledWorkflow()

	idx, err := w.AppendMedication()
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, err = w.AppendMedication()
	require.NoError(t, err)

	require.NoError(t, w.RemoveMedication(0))

	meds := w.Snapshot().Prescription.Medications
	require.Len(t, meds, 2)
	assert.Equal(t, Medication{}, meds[0])

	assert.ErrorIs(t, w.RemoveMedication(5), ErrMedicationIndex)
}

func TestReplace_KeepsOneMedicationEntry(t *testing.T) {
	w := newFilledWorkflow()
	require.NoError(t, w.Replace(Candidate{Symptoms: "Cough"}))

	snap := w.Snapshot()
	assert.Equal(t, "Cough", snap.Prescription.Symptoms)
	assert.Len(t, snap.Prescription.Medications, 1)
}

func TestSubmit_ValidationFailureMakesNoCall(t *testing.T) {
	w := newFilledWorkflow()
	c := *validCandidate()
	c.Medications[0].Name = ""
	require.NoError(t, w.Replace(c))

	sub := &fakeSubmitter{id: "rx-1"}
	_, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, atomic.LoadInt32(&sub.calls))

	snap := w.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, MsgMedicationName, snap.Errors["medications.0.name"])
}

func TestSubmit_NoSessionMakesNoCall(t *testing.T) {
	w := newFilledWorkflow()
	sub := &fakeSubmitter{id: "rx-1"}

	_, err := w.Submit(context.Background(), session.Session{}, sub)

	assert.ErrorIs(t, err, session.ErrUnauthorized)
	assert.Zero(t, atomic.LoadInt32(&sub.calls))
}

func TestSubmit_FailurePreservesData(t *testing.T) {
	w := newFilledWorkflow()
	sub := &fakeSubmitter{err: errors.New("backend unavailable")}

	_, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)
	require.Error(t, err)

	snap := w.Snapshot()
	assert.Equal(t, StateEditing, snap.State)
	assert.Equal(t, MsgSubmitFailed, snap.Notice)
	assert.Equal(t, "Migraine", snap.Prescription.Diagnosis)
	assert.Equal(t, "Sumatriptan", snap.Prescription.Medications[0].Name)

	_, err = w.AppendMedication()
	require.NoError(t, err)
	assert.Equal(t, StateEditing, w.State())
	assert.Empty(t, w.Snapshot().Notice)

	sub.err = nil
	sub.id = "rx-2"
	id, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)
	require.NoError(t, err)
	assert.Equal(t, "rx-2", id)
}

func TestSubmit_SuccessDiscardsForm(t *testing.T) {
	w := newFilledWorkflow()
	sub := &fakeSubmitter{id: "rx-42"}

	id, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)
	require.NoError(t, err)
	assert.Equal(t, "rx-42", id)

	snap := w.Snapshot()
	assert.Equal(t, StateSucceeded, snap.State)
	assert.Equal(t, "rx-42", snap.PrescriptionID)
	assert.Empty(t, snap.Prescription.Medications)

	_, err = w.Submit(context.Background(), sessionFor("doc-1"), sub)
	assert.ErrorIs(t, err, ErrNotEditable)
	assert.ErrorIs(t, w.RemoveMedication(0), ErrNotEditable)
	assert.EqualValues(t, 1, atomic.LoadInt32(&sub.calls))
}

func TestSubmit_OverlappingSubmitIsRejected(t *testing.T) {
	w := newFilledWorkflow()
	sub := &fakeSubmitter{
		id:      "rx-1",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)
		done <- err
	}()

	select {
	case <-sub.started:
	case <-time.After(time.Second):
		t.Fatal("first submit never reached the backend")
	}

	_, err := w.Submit(context.Background(), sessionFor("doc-1"), sub)
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, w.Replace(Candidate{}), ErrSubmissionInFlight)

	close(sub.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, atomic.LoadInt32(&sub.calls))
}
