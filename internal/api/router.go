// Package api assembles the clinic HTTP surface.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/activity"
	"github.com/automedic/clinic/internal/api/handlers"
	"github.com/automedic/clinic/internal/api/middleware"
	"github.com/automedic/clinic/internal/dispatch"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/observability/metrics"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/circuitbreaker"
)

// Deps wires the router. Recorder, Breakers, Metrics and Gatherer may be nil.
type Deps struct {
	Sessions      *session.Manager
	Backend       handlers.Backend
	Dispatcher    *dispatch.Dispatcher
	Drafts        *prescription.DraftStore
	Recorder      activity.Recorder
	Breakers      *circuitbreaker.Manager
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	SecureCookies bool
	CORSOrigins   []string
	ServiceName   string
	Logger        *zap.Logger
}

// NewRouter builds the served routes. Read routes redirect to /login without a
// session; mutation routes answer 401.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if d.ServiceName == "" {
		d.ServiceName = "clinic"
	}

	auth := handlers.NewAuthHandler(d.Sessions, d.SecureCookies, logger)
	clinic := handlers.NewClinicHandler(d.Backend, d.Recorder, logger)
	rx := handlers.NewPrescriptionHandler(d.Backend, d.Dispatcher, d.Drafts, d.Metrics, logger)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Tracing(d.ServiceName))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(d.CORSOrigins))
	r.Use(chimw.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
	})
	r.Get("/ready", readiness(d))
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(d.SecureCookies))

		r.Post("/login", auth.Login)
		r.Post("/logout", auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RedirectWithoutSession("/login"))

			r.Get("/", clinic.Dashboard)
			r.Get("/patients", clinic.Patients)
			r.Get("/patients/{id}", clinic.Patient)
			r.Get("/settings", clinic.Settings)
			r.Get("/drafts/{draftID}", rx.GetDraft)
			r.Get("/prescriptions/{id}", rx.Get)
			r.Get("/prescriptions/{id}/pdf", rx.PDF)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RejectWithoutSession)

			r.Post("/settings", clinic.UpdateSettings)
			r.Post("/patients/{id}/prescriptions", rx.Create)
			r.Post("/patients/{id}/drafts", rx.CreateDraft)
			r.Put("/drafts/{draftID}", rx.UpdateDraft)
			r.Post("/drafts/{draftID}/medications", rx.AppendMedication)
			r.Delete("/drafts/{draftID}/medications/{index}", rx.RemoveMedication)
			r.Post("/drafts/{draftID}/submit", rx.SubmitDraft)
			r.Post("/prescriptions/{id}/share", rx.Share)
			r.Post("/prescriptions/{id}/share-all", rx.ShareAll)
		})
	})

	return r
}

// readiness reports the share pool and backend breakers. Open breakers do not
// fail readiness since reads fall back locally.
func readiness(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{"status": "ready"}
		code := http.StatusOK

		if d.Dispatcher != nil {
			body["sharePool"] = d.Dispatcher.Stats()
			if !d.Dispatcher.Healthy() {
				body["status"] = "not ready"
				code = http.StatusServiceUnavailable
			}
		}
		if d.Breakers != nil {
			body["breakers"] = d.Breakers.GetHealthStatus()
		}
		writeStatus(w, code, body)
	}
}

func writeStatus(w http.ResponseWriter, code int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
