package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/api/middleware"
	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/dispatch"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/observability/metrics"
)

// PrescriptionHandler handles authoring, submission and sharing.
type PrescriptionHandler struct {
	backend    Backend
	dispatcher Dispatcher
	drafts     *prescription.DraftStore
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewPrescriptionHandler creates a new handler
func NewPrescriptionHandler(b Backend, d Dispatcher, drafts *prescription.DraftStore, m *metrics.Metrics, logger *zap.Logger) *PrescriptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionHandler{backend: b, dispatcher: d, drafts: drafts, metrics: m, logger: logger}
}

// CreateResponse is returned after a prescription is persisted.
type CreateResponse struct {
	ID           string                 `json:"id"`
	ShareMethods []dispatch.Method      `json:"shareMethods"`
	Draft        *prescription.Snapshot `json:"draft,omitempty"`
}

// Create handles POST /patients/{id}/prescriptions: validate and submit in one step.
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("prescription-handler").Start(r.Context(), "create_prescription")
	defer span.End()

	var c prescription.Candidate
	if err := decodeBody(w, r, &c); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess := sessionFrom(r)
	patientID := chi.URLParam(r, "id")
	wf := prescription.NewWorkflow("", patientID, sess.DoctorID, c)

	id, err := wf.Submit(ctx, sess, h.dispatcher)
	if err != nil {
		span.RecordError(err)
		writeError(w, h.logger, err, prescription.MsgSubmitFailed)
		return
	}

	span.SetAttributes(attribute.String("prescription_id", id))
	h.logger.Info("prescription created",
		zap.String("id", id),
		zap.String("request_id", middleware.GetRequestID(ctx)))

	w.Header().Set("Location", "/prescriptions/"+id)
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id, ShareMethods: dispatch.Methods()})
}

// CreateDraft handles POST /patients/{id}/drafts
func (h *PrescriptionHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	wf, err := h.drafts.Create(sessionFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	h.metrics.SetActiveDrafts(h.drafts.Len())

	w.Header().Set("Location", "/drafts/"+wf.ID())
	writeJSON(w, http.StatusCreated, wf.Snapshot())
}

func (h *PrescriptionHandler) draft(w http.ResponseWriter, r *http.Request) (*prescription.Workflow, bool) {
	wf, err := h.drafts.Get(sessionFrom(r), chi.URLParam(r, "draftID"))
	if err != nil {
		writeError(w, h.logger, err, "")
		return nil, false
	}
	return wf, true
}

// GetDraft handles GET /drafts/{draftID}
func (h *PrescriptionHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.draft(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, wf.Snapshot())
}

// UpdateDraft handles PUT /drafts/{draftID}
func (h *PrescriptionHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.draft(w, r)
	if !ok {
		return
	}

	var c prescription.Candidate
	if err := decodeBody(w, r, &c); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := wf.Replace(c); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wf.Snapshot())
}

// AppendMedication handles POST /drafts/{draftID}/medications
func (h *PrescriptionHandler) AppendMedication(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.draft(w, r)
	if !ok {
		return
	}
	if _, err := wf.AppendMedication(); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wf.Snapshot())
}

// RemoveMedication handles DELETE /drafts/{draftID}/medications/{index}
func (h *PrescriptionHandler) RemoveMedication(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.draft(w, r)
	if !ok {
		return
	}

	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		jsonError(w, "medication index must be an integer", http.StatusBadRequest)
		return
	}
	if err := wf.RemoveMedication(i); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wf.Snapshot())
}

// SubmitDraft handles POST /drafts/{draftID}/submit. A persisted draft is discarded.
func (h *PrescriptionHandler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	wf, ok := h.draft(w, r)
	if !ok {
		return
	}

	id, err := wf.Submit(r.Context(), sessionFrom(r), h.dispatcher)
	if err != nil {
		writeError(w, h.logger, err, prescription.MsgSubmitFailed)
		return
	}

	snap := wf.Snapshot()
	h.drafts.Discard(wf.ID())
	h.metrics.SetActiveDrafts(h.drafts.Len())

	w.Header().Set("Location", "/prescriptions/"+id)
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id, ShareMethods: dispatch.Methods(), Draft: &snap})
}

// DetailResponse is the confirmation view of a persisted prescription.
type DetailResponse struct {
	backend.PrescriptionDetail
	ShareMethods []dispatch.Method `json:"shareMethods"`
}

// Get handles GET /prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	detail := h.backend.PrescriptionDetail(r.Context(), sessionFrom(r), chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, DetailResponse{PrescriptionDetail: detail, ShareMethods: dispatch.Methods()})
}

// PDF handles GET /prescriptions/{id}/pdf
func (h *PrescriptionHandler) PDF(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.dispatcher.ExportPDF(r.Context(), sessionFrom(r), id)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "prescription-"+id+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// ShareRequest selects one channel.
type ShareRequest struct {
	Method string `json:"method" schema:"method"`
}

// Share handles POST /prescriptions/{id}/share
func (h *PrescriptionHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req ShareRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.dispatcher.Share(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), req.Method)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}

	code := http.StatusOK
	if !res.Success {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, res)
}

// ShareAllRequest selects several channels.
type ShareAllRequest struct {
	Methods []string `json:"methods" schema:"methods"`
}

// ShareAll handles POST /prescriptions/{id}/share-all. Each channel is
// reported separately; one failure does not affect the others.
func (h *PrescriptionHandler) ShareAll(w http.ResponseWriter, r *http.Request) {
	var req ShareAllRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	results, err := h.dispatcher.ShareAll(r.Context(), sessionFrom(r), chi.URLParam(r, "id"), req.Methods)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}
