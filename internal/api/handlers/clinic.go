package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/activity"
	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
)

// ClinicHandler serves the dashboard, patient roster and doctor settings.
type ClinicHandler struct {
	backend  Backend
	recorder activity.Recorder
	logger   *zap.Logger
}

// NewClinicHandler creates a new handler. recorder may be nil.
func NewClinicHandler(b Backend, recorder activity.Recorder, logger *zap.Logger) *ClinicHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClinicHandler{backend: b, recorder: recorder, logger: logger}
}

// Dashboard handles GET /
func (h *ClinicHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.DashboardStats(r.Context(), sessionFrom(r)))
}

// Patients handles GET /patients?q=
func (h *ClinicHandler) Patients(w http.ResponseWriter, r *http.Request) {
	roster := h.backend.Patients(r.Context(), sessionFrom(r))
	writeJSON(w, http.StatusOK, patient.Search(roster, r.URL.Query().Get("q")))
}

// Patient handles GET /patients/{id}
func (h *ClinicHandler) Patient(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.PatientDetail(r.Context(), sessionFrom(r), chi.URLParam(r, "id")))
}

// Settings handles GET /settings
func (h *ClinicHandler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.backend.Doctor(r.Context(), sessionFrom(r)))
}

// UpdateSettings handles POST /settings
func (h *ClinicHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p doctor.Profile
	if err := decodeBody(w, r, &p); err != nil {
		jsonError(w, doctor.MsgInvalidData, http.StatusUnprocessableEntity)
		return
	}
	p = p.Normalize()
	if err := p.Validate(); err != nil {
		h.logger.Debug("settings rejected", zap.Error(err))
		jsonError(w, doctor.MsgInvalidData, http.StatusUnprocessableEntity)
		return
	}

	sess := sessionFrom(r)
	if err := h.backend.UpdateDoctor(r.Context(), sess, p); err != nil {
		h.logger.Error("settings update failed", zap.String("doctor_id", sess.DoctorID), zap.Error(err))
		writeError(w, h.logger, err, doctor.MsgUpdateFailed)
		return
	}

	activity.Emit(r.Context(), h.recorder, activity.NewEvent(activity.TypeProfileUpdated, sess.DoctorID), h.logger)
	writeJSON(w, http.StatusOK, map[string]string{"message": doctor.MsgUpdated})
}
