package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/circuitbreaker"
)

// Read resources, also used as breaker names and metric labels.
const (
	ResourceDashboard    = "dashboard"
	ResourcePatients     = "patients"
	ResourcePatient      = "patient"
	ResourceDoctor       = "doctor"
	ResourcePrescription = "prescription"
)

// DashboardStats is the doctor's daily summary.
type DashboardStats struct {
	PatientsToday      int     `json:"patientsToday"`
	PrescriptionsToday int     `json:"prescriptionsToday"`
	FeesCollected      float64 `json:"feesCollected"`
}

// PrescriptionDetail is a persisted prescription as shown after submission.
type PrescriptionDetail struct {
	ID          string                    `json:"id"`
	PatientName string                    `json:"patientName"`
	Diagnosis   string                    `json:"diagnosis"`
	Medications []prescription.Medication `json:"medications"`
	PDFURL      string                    `json:"pdfUrl,omitempty"`
}

// DashboardStats returns today's summary for the session's doctor.
func (c *Client) DashboardStats(ctx context.Context, sess session.Session) DashboardStats {
	path := "/dashboard?doctor_id=" + url.QueryEscape(sess.DoctorID)
	return readWithFallback(ctx, c, ResourceDashboard, sess, path, fallbackDashboard)
}

// Patients returns the doctor's roster.
func (c *Client) Patients(ctx context.Context, sess session.Session) []patient.Patient {
	path := "/patients?doctor_id=" + url.QueryEscape(sess.DoctorID)
	return readWithFallback(ctx, c, ResourcePatients, sess, path, fallbackPatients)
}

// PatientDetail returns one patient with history.
func (c *Client) PatientDetail(ctx context.Context, sess session.Session, id string) patient.Detail {
	return readWithFallback(ctx, c, ResourcePatient, sess, "/patient/"+url.PathEscape(id), func() patient.Detail {
		return fallbackPatientDetail(id)
	})
}

// Doctor returns the session doctor's profile.
func (c *Client) Doctor(ctx context.Context, sess session.Session) doctor.Profile {
	return readWithFallback(ctx, c, ResourceDoctor, sess, "/doctor/"+url.PathEscape(sess.DoctorID), fallbackDoctor)
}

// PrescriptionDetail returns a persisted prescription.
func (c *Client) PrescriptionDetail(ctx context.Context, sess session.Session, id string) PrescriptionDetail {
	return readWithFallback(ctx, c, ResourcePrescription, sess, "/prescription/"+url.PathEscape(id), func() PrescriptionDetail {
		return fallbackPrescription(id)
	})
}

// readWithFallback fetches path and decodes it as T. Any failure, whether the
// call itself, decoding, or an open breaker, yields fallback() instead.
// The caller cannot tell the two apart except through logs and metrics.
func readWithFallback[T any](ctx context.Context, c *Client, resource string, sess session.Session, path string, fallback func() T) T {
	degrade := func(err error) T {
		c.logger.Warn("backend read degraded to local data",
			zap.String("resource", resource),
			zap.String("doctor_id", sess.DoctorID),
			zap.Error(err))
		c.metrics.ReadFallback(resource)
		return fallback()
	}

	cb, err := c.breakers.GetOrCreate(resource, circuitbreaker.DefaultConfig(resource))
	if err != nil {
		return degrade(fmt.Errorf("breaker %s: %w", resource, err))
	}

	result, err := cb.ExecuteWithFallback(ctx,
		func() (interface{}, error) {
			var out T
			if err := c.do(ctx, sess, resource+".get", http.MethodGet, path, nil, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
		func(err error) (interface{}, error) {
			return degrade(err), nil
		},
	)
	if err != nil {
		return degrade(err)
	}
	v, ok := result.(T)
	if !ok {
		return degrade(fmt.Errorf("unexpected %s result %T", resource, result))
	}
	return v
}
