// Package prescription implements prescription validation and the authoring workflow.
package prescription

import "github.com/automedic/clinic/internal/session"

// Medication is one prescribed drug.
type Medication struct {
	Name       string `json:"name" schema:"name"`
	DrugCode   string `json:"drugCode,omitempty" schema:"drugCode"`
	Dosage     string `json:"dosage" schema:"dosage"`
	Duration   string `json:"duration" schema:"duration"`
	DosageForm string `json:"dosageForm,omitempty" schema:"dosageForm"`
}

// Investigations records observations made during the visit.
type Investigations struct {
	Observation string `json:"observation,omitempty" schema:"observation"`
	Comments    string `json:"comments,omitempty" schema:"comments"`
}

// ClinicalProcedures records a referral for a procedure.
type ClinicalProcedures struct {
	ProcedureName   string `json:"procedureName,omitempty" schema:"procedureName"`
	ReferringDoctor string `json:"referringDoctor,omitempty" schema:"referringDoctor"`
	Date            string `json:"date,omitempty" schema:"date"`
}

// ReviewDetails schedules the follow-up.
type ReviewDetails struct {
	NextVisitDate string `json:"nextVisitDate,omitempty" schema:"nextVisitDate"`
	Notes         string `json:"notes,omitempty" schema:"notes"`
}

// Rehabilitation is the validated therapy plan.
type Rehabilitation struct {
	TherapyType      string   `json:"therapyType,omitempty"`
	NumberOfSessions *float64 `json:"numberOfSessions,omitempty"`
}

// Prescription is a validated, normalized prescription.
type Prescription struct {
	Symptoms           string              `json:"symptoms"`
	Diagnosis          string              `json:"diagnosis"`
	Medications        []Medication        `json:"medications"`
	Investigations     *Investigations     `json:"investigations,omitempty"`
	ClinicalProcedures *ClinicalProcedures `json:"clinicalProcedures,omitempty"`
	Rehabilitation     *Rehabilitation     `json:"rehabilitation,omitempty"`
	ReviewDetails      ReviewDetails       `json:"reviewDetails"`
}

// Submission is the body sent to the backend when a prescription is created.
type Submission struct {
	Prescription
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

// NewSubmission attaches the patient and the session's doctor to p.
// The doctor id is never taken from user input.
func NewSubmission(sess session.Session, patientID string, p *Prescription) Submission {
	return Submission{Prescription: *p, PatientID: patientID, DoctorID: sess.DoctorID}
}
