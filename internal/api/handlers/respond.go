// Package handlers provides HTTP handlers for the clinic API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/dispatch"
	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/session"
)

const maxBodyBytes = 1 << 20

// Backend is the remote API surface used by the read and settings handlers.
type Backend interface {
	DashboardStats(ctx context.Context, sess session.Session) backend.DashboardStats
	Patients(ctx context.Context, sess session.Session) []patient.Patient
	PatientDetail(ctx context.Context, sess session.Session, id string) patient.Detail
	Doctor(ctx context.Context, sess session.Session) doctor.Profile
	PrescriptionDetail(ctx context.Context, sess session.Session, id string) backend.PrescriptionDetail
	UpdateDoctor(ctx context.Context, sess session.Session, p doctor.Profile) error
}

// Dispatcher persists and shares prescriptions.
type Dispatcher interface {
	prescription.Submitter
	Share(ctx context.Context, sess session.Session, prescriptionID, method string) (dispatch.ShareResult, error)
	ShareAll(ctx context.Context, sess session.Session, prescriptionID string, methods []string) ([]dispatch.ShareResult, error)
	ExportPDF(ctx context.Context, sess session.Session, prescriptionID string) ([]byte, error)
}

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(prescription.NumericText(""), prescription.ConvertNumericText)
	d.RegisterConverter(doctor.Fee(0), doctor.ConvertFee)
	return d
}

// isForm reports whether the request body is an HTML form post.
func isForm(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/x-www-form-urlencoded" || mt == "multipart/form-data"
}

// decodeBody reads a JSON body, or a form body with medications.0.name style keys.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parse form: %w", err)
		}
		if err := formDecoder.Decode(dst, r.PostForm); err != nil {
			return fmt.Errorf("decode form: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// sessionFrom returns the session resolved by the session middleware.
func sessionFrom(r *http.Request) session.Session {
	s, _ := session.FromContext(r.Context())
	return s
}

// writeError maps domain errors to responses. unavailable is the message
// shown when the backend failed to persist a write.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, unavailable string) {
	var (
		authErr  *session.AuthenticationError
		validErr *prescription.ValidationError
		persist  *backend.PersistenceError
	)

	switch {
	case errors.As(err, &authErr):
		jsonError(w, authErr.Message, http.StatusUnauthorized)
	case errors.Is(err, session.ErrUnauthorized):
		jsonError(w, err.Error(), http.StatusUnauthorized)
	case errors.As(err, &validErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"errors": validErr.Fields})
	case errors.Is(err, prescription.ErrSubmissionInFlight),
		errors.Is(err, prescription.ErrLastMedication),
		errors.Is(err, prescription.ErrNotEditable):
		jsonError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, prescription.ErrDraftNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, prescription.ErrMedicationIndex),
		errors.Is(err, dispatch.ErrUnknownMethod),
		errors.Is(err, dispatch.ErrNoMethods),
		errors.Is(err, dispatch.ErrMissingPatient),
		errors.Is(err, dispatch.ErrMissingPrescription):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &persist):
		jsonError(w, unavailable, http.StatusBadGateway)
	default:
		logger.Error("unhandled error", zap.Error(err))
		jsonError(w, "internal server error", http.StatusInternalServerError)
	}
}
