// Package activity records what doctors did, for downstream consumers.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies an activity event.
type Type string

const (
	TypePrescriptionSubmitted Type = "prescription.submitted"
	TypePrescriptionShared    Type = "prescription.shared"
	TypeShareFailed           Type = "prescription.share_failed"
	TypeProfileUpdated        Type = "doctor.profile_updated"
)

// Event is one recorded action.
type Event struct {
	ID             string    `json:"id"`
	Type           Type      `json:"type"`
	DoctorID       string    `json:"doctorId"`
	PatientID      string    `json:"patientId,omitempty"`
	PrescriptionID string    `json:"prescriptionId,omitempty"`
	Method         string    `json:"method,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NewEvent creates an event stamped now.
func NewEvent(t Type, doctorID string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		DoctorID:   doctorID,
		OccurredAt: time.Now().UTC(),
	}
}

// Key is the partition key: the prescription when there is one, else the doctor.
func (e *Event) Key() string {
	if e.PrescriptionID != "" {
		return e.PrescriptionID
	}
	return e.DoctorID
}

// Recorder stores events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, *Event) error { return nil }

// Emit records e and logs a failure instead of returning it.
// Activity is a side channel and never fails the user operation.
func Emit(ctx context.Context, r Recorder, e *Event, logger *zap.Logger) {
	if r == nil {
		return
	}
	if err := r.Record(ctx, e); err != nil && logger != nil {
		logger.Warn("failed to record activity",
			zap.String("event_type", string(e.Type)),
			zap.String("event_id", e.ID),
			zap.Error(err))
	}
}
