// Package mockapi is an in-memory stand-in for the clinic REST API, used for
// local development and tests.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
	"github.com/automedic/clinic/internal/domain/prescription"
)

// Config holds mock API configuration
type Config struct {
	SigningKey []byte
	TokenTTL   time.Duration
	BcryptCost int
}

// DefaultConfig returns development defaults.
func DefaultConfig() Config {
	return Config{
		SigningKey: []byte("clinic-mock-api-dev-key"),
		TokenTTL:   7 * 24 * time.Hour,
		BcryptCost: bcrypt.DefaultCost,
	}
}

var shareMethods = map[string]bool{"email": true, "whatsapp": true, "reception": true}

// Server serves the mock API.
type Server struct {
	cfg    Config
	logger *zap.Logger
	router chi.Router

	mu             sync.Mutex
	accounts       map[string]account
	doctors        map[string]doctor.Profile
	patients       map[string]patientRecord
	prescriptions  map[string]prescriptionRecord
	shares         []Share
	faults         map[string]int
	failingMethods map[string]bool
	calls          map[string]int
}

// New creates a seeded server.
func New(cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("mockapi: signing key is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	s := &Server{
		cfg:            cfg,
		logger:         logger,
		accounts:       make(map[string]account),
		doctors:        make(map[string]doctor.Profile),
		patients:       make(map[string]patientRecord),
		prescriptions:  make(map[string]prescriptionRecord),
		faults:         make(map[string]int),
		failingMethods: make(map[string]bool),
		calls:          make(map[string]int),
	}
	if err := s.seed(); err != nil {
		return nil, fmt.Errorf("seed mock data: %w", err)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Post("/login", s.login)
	r.Get("/dashboard", s.dashboard)
	r.Get("/patients", s.listPatients)
	r.Get("/patient/{id}", s.getPatient)
	r.Get("/doctor/{id}", s.getDoctor)
	r.Get("/prescription/{id}", s.getPrescription)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/doctor/update", s.updateDoctor)
		r.Post("/prescription", s.createPrescription)
		r.Post("/send-prescription", s.sendPrescription)
	})
	return r
}

// record counts calls and applies injected faults.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[key]++
		status, faulty := s.faults[key]
		s.mu.Unlock()

		if faulty {
			jsonError(w, "injected fault", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claims struct {
	DoctorID string `json:"doctor_id"`
	jwt.RegisteredClaims
}

type contextKey string

const doctorKey contextKey = "doctor_id"

func (s *Server) issueToken(doctorID string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		DoctorID: doctorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   doctorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.cfg.SigningKey)
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			jsonError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
			return s.cfg.SigningKey, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || c.DoctorID == "" {
			jsonError(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), doctorKey, c.DoctorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenDoctor(ctx context.Context) string {
	id, _ := ctx.Value(doctorKey).(string)
	return id
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.issueToken(acct.doctorID)
	if err != nil {
		s.logger.Error("sign token", zap.Error(err))
		jsonError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "doctorId": acct.doctorID})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	doctorID := r.URL.Query().Get("doctor_id")
	today := time.Now().UTC().Format("2006-01-02")

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var count int
	for _, rec := range s.prescriptions {
		if rec.sub.DoctorID != doctorID || rec.createdAt.Format("2006-01-02") != today {
			continue
		}
		count++
		seen[rec.sub.PatientID] = true
	}
	fee := float64(s.doctors[doctorID].DefaultFee)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patientsToday":      len(seen),
		"prescriptionsToday": count,
		"feesCollected":      float64(len(seen)) * fee,
	})
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	doctorID := r.URL.Query().Get("doctor_id")

	s.mu.Lock()
	out := make([]patient.Patient, 0, len(s.patients))
	for _, rec := range s.patients {
		if doctorID == "" || rec.doctorID == doctorID {
			out = append(out, rec.detail.Patient)
		}
	}
	s.mu.Unlock()

	sortPatients(out)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getPatient(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	rec, ok := s.patients[chi.URLParam(r, "id")]
	s.mu.Unlock()

	if !ok {
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec.detail)
}

func (s *Server) getDoctor(w http.ResponseWriter, r *http.Request) {
	p, ok := s.Doctor(chi.URLParam(r, "id"))
	if !ok {
		jsonError(w, "doctor not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) updateDoctor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		doctor.Profile
		DoctorID string `json:"doctorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DoctorID != tokenDoctor(r.Context()) {
		jsonError(w, "doctor mismatch", http.StatusForbidden)
		return
	}

	s.mu.Lock()
	s.doctors[req.DoctorID] = req.Profile
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, req.Profile)
}

func (s *Server) createPrescription(w http.ResponseWriter, r *http.Request) {
	var sub prescription.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if sub.DoctorID != tokenDoctor(r.Context()) {
		jsonError(w, "doctor mismatch", http.StatusForbidden)
		return
	}
	if len(sub.Medications) == 0 {
		jsonError(w, "medications required", http.StatusUnprocessableEntity)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.patients[sub.PatientID]; !ok {
		jsonError(w, "unknown patient", http.StatusUnprocessableEntity)
		return
	}
	id := uuid.NewString()
	s.prescriptions[id] = prescriptionRecord{id: id, sub: sub, createdAt: time.Now().UTC()}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) getPrescription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	rec, ok := s.prescriptions[id]
	name := s.patients[rec.sub.PatientID].detail.Name
	s.mu.Unlock()

	if !ok {
		jsonError(w, "prescription not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          id,
		"patientName": name,
		"diagnosis":   rec.sub.Diagnosis,
		"medications": rec.sub.Medications,
		"pdfUrl":      "/prescriptions/" + id + "/pdf",
	})
}

func (s *Server) sendPrescription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PrescriptionID string `json:"prescriptionId"`
		Method         string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !shareMethods[req.Method] {
		jsonError(w, "unsupported method", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prescriptions[req.PrescriptionID]; !ok {
		jsonError(w, "prescription not found", http.StatusNotFound)
		return
	}
	if s.failingMethods[req.Method] {
		jsonError(w, "delivery failed", http.StatusBadGateway)
		return
	}
	s.shares = append(s.shares, Share{
		PrescriptionID: req.PrescriptionID,
		Method:         req.Method,
		DoctorID:       tokenDoctor(r.Context()),
		At:             time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}
