package mockapi

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/patient"
	"github.com/automedic/clinic/internal/domain/prescription"
)

// Seed credentials for the demo doctor.
const (
	SeedEmail    = "doctor@example.com"
	SeedPassword = "password123"
	SeedDoctorID = "doc-1"
)

type account struct {
	hash     []byte
	doctorID string
}

type patientRecord struct {
	detail   patient.Detail
	doctorID string
}

type prescriptionRecord struct {
	id        string
	sub       prescription.Submission
	createdAt time.Time
}

// Share is one delivery accepted by the mock.
type Share struct {
	PrescriptionID string    `json:"prescriptionId"`
	Method         string    `json:"method"`
	DoctorID       string    `json:"doctorId"`
	At             time.Time `json:"at"`
}

// seed fills an empty store with the demo doctor and roster.
func (s *Server) seed() error {
	hash, err := bcrypt.GenerateFromPassword([]byte(SeedPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	s.accounts[SeedEmail] = account{hash: hash, doctorID: SeedDoctorID}

	s.doctors[SeedDoctorID] = doctor.Profile{
		Name:           "Dr. Emily Carter",
		Specialization: "Cardiology",
		ClinicInfo:     "Heartbeat Clinic, 123 Health St.",
		DefaultFee:     150,
	}

	roster := []patient.Detail{
		{
			Patient:        patient.Patient{ID: "1", Name: "John Doe", Age: 45, Gender: "Male", LastVisit: "2023-10-15"},
			Contact:        "555-1234",
			MedicalHistory: "Hypertension, Allergic to Penicillin.",
			RecentEncounters: []patient.Encounter{
				{Date: "2023-10-15", Diagnosis: "Common Cold"},
			},
		},
		{
			Patient:        patient.Patient{ID: "2", Name: "Jane Smith", Age: 34, Gender: "Female", LastVisit: "2023-10-12"},
			Contact:        "555-9876",
			MedicalHistory: "Migraine.",
			RecentEncounters: []patient.Encounter{
				{Date: "2023-10-12", Diagnosis: "Migraine"},
			},
		},
		{
			Patient:          patient.Patient{ID: "3", Name: "Peter Jones", Age: 52, Gender: "Male", LastVisit: "2023-09-28"},
			Contact:          "555-4455",
			MedicalHistory:   "Type 2 diabetes.",
			RecentEncounters: []patient.Encounter{},
		},
	}
	for _, d := range roster {
		s.patients[d.ID] = patientRecord{detail: d, doctorID: SeedDoctorID}
	}
	return nil
}

// AddAccount registers another doctor login. Used to test cross-doctor access.
func (s *Server) AddAccount(email, password, doctorID string, p doctor.Profile) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(email)] = account{hash: hash, doctorID: doctorID}
	s.doctors[doctorID] = p
	return nil
}

// Prescription returns a stored submission.
func (s *Server) Prescription(id string) (prescription.Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.prescriptions[id]
	return rec.sub, ok
}

// Doctor returns a stored profile.
func (s *Server) Doctor(id string) (doctor.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.doctors[id]
	return p, ok
}

// Shares returns every accepted delivery in arrival order.
func (s *Server) Shares() []Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Share(nil), s.shares...)
}

// Calls returns how many requests reached method and path.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// SetFault makes every request to method and path answer with status.
func (s *Server) SetFault(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method+" "+path] = status
}

// ClearFaults removes all injected faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]int)
	s.failingMethods = make(map[string]bool)
}

// FailShareMethod makes deliveries through method fail.
func (s *Server) FailShareMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failingMethods[method] = true
}

func sortPatients(ps []patient.Patient) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
}
