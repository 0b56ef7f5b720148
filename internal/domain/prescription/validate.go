package prescription

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Validation messages.
const (
	MsgSymptomsRequired      = "Symptoms are required."
	MsgDiagnosisRequired     = "Diagnosis is required."
	MsgMedicationsRequired   = "At least one medication is required."
	MsgMedicationName        = "Medication name is required."
	MsgDosageRequired        = "Dosage is required."
	MsgDurationRequired      = "Duration is required."
	MsgReviewDetailsRequired = "Review details are required."
	MsgSessionsNotNumber     = "Number of sessions must be a number."
	MsgSessionsNegative      = "Number of sessions cannot be negative."
)

// FieldErrors maps a dotted field path such as "medications.0.name" to its message.
type FieldErrors map[string]string

// ValidationError lists every rule a candidate violated.
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	paths := make([]string, 0, len(e.Fields))
	for p := range e.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("prescription invalid: ")
	for i, p := range paths {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(p + ": " + e.Fields[p])
	}
	return b.String()
}

// rule checks one constraint and records violations into errs.
// Rules never depend on each other's outcome.
type rule func(c *Candidate, errs FieldErrors)

var rules = []rule{
	required("symptoms", MsgSymptomsRequired, func(c *Candidate) string { return c.Symptoms }),
	required("diagnosis", MsgDiagnosisRequired, func(c *Candidate) string { return c.Diagnosis }),
	medicationsRule,
	rehabilitationRule,
	reviewDetailsRule,
}

// Validate checks c against every rule and returns the normalized prescription.
// All violations are reported together in a *ValidationError.
func Validate(c *Candidate) (*Prescription, error) {
	if c == nil {
		c = &Candidate{}
	}

	errs := FieldErrors{}
	for _, r := range rules {
		r(c, errs)
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return normalize(c), nil
}

func required(path, msg string, get func(*Candidate) string) rule {
	return func(c *Candidate, errs FieldErrors) {
		if blank(get(c)) {
			errs[path] = msg
		}
	}
}

func medicationsRule(c *Candidate, errs FieldErrors) {
	if len(c.Medications) == 0 {
		errs["medications"] = MsgMedicationsRequired
		return
	}
	for i, m := range c.Medications {
		prefix := "medications." + strconv.Itoa(i) + "."
		if blank(m.Name) {
			errs[prefix+"name"] = MsgMedicationName
		}
		if blank(m.Dosage) {
			errs[prefix+"dosage"] = MsgDosageRequired
		}
		if blank(m.Duration) {
			errs[prefix+"duration"] = MsgDurationRequired
		}
	}
}

func rehabilitationRule(c *Candidate, errs FieldErrors) {
	if c.Rehabilitation == nil {
		return
	}
	if _, msg := parseSessions(c.Rehabilitation.NumberOfSessions); msg != "" {
		errs["rehabilitation.numberOfSessions"] = msg
	}
}

func reviewDetailsRule(c *Candidate, errs FieldErrors) {
	if c.ReviewDetails == nil {
		errs["reviewDetails"] = MsgReviewDetailsRequired
	}
}

// parseSessions coerces numeric text. Blank input means the field is absent.
func parseSessions(raw NumericText) (*float64, string) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil, ""
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, MsgSessionsNotNumber
	}
	if n < 0 {
		return nil, MsgSessionsNegative
	}
	return &n, ""
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalize builds the canonical form of a candidate that passed every rule.
// Optional sections with no content are dropped.
func normalize(c *Candidate) *Prescription {
	p := &Prescription{
		Symptoms:    strings.TrimSpace(c.Symptoms),
		Diagnosis:   strings.TrimSpace(c.Diagnosis),
		Medications: make([]Medication, len(c.Medications)),
	}

	for i, m := range c.Medications {
		p.Medications[i] = Medication{
			Name:       strings.TrimSpace(m.Name),
			DrugCode:   strings.TrimSpace(m.DrugCode),
			Dosage:     strings.TrimSpace(m.Dosage),
			Duration:   strings.TrimSpace(m.Duration),
			DosageForm: strings.TrimSpace(m.DosageForm),
		}
	}

	if inv := c.Investigations; inv != nil {
		v := Investigations{
			Observation: strings.TrimSpace(inv.Observation),
			Comments:    strings.TrimSpace(inv.Comments),
		}
		if v != (Investigations{}) {
			p.Investigations = &v
		}
	}

	if cp := c.ClinicalProcedures; cp != nil {
		v := ClinicalProcedures{
			ProcedureName:   strings.TrimSpace(cp.ProcedureName),
			ReferringDoctor: strings.TrimSpace(cp.ReferringDoctor),
			Date:            strings.TrimSpace(cp.Date),
		}
		if v != (ClinicalProcedures{}) {
			p.ClinicalProcedures = &v
		}
	}

	if r := c.Rehabilitation; r != nil {
		sessions, _ := parseSessions(r.NumberOfSessions)
		v := Rehabilitation{TherapyType: strings.TrimSpace(r.TherapyType), NumberOfSessions: sessions}
		if v.TherapyType != "" || v.NumberOfSessions != nil {
			p.Rehabilitation = &v
		}
	}

	p.ReviewDetails = ReviewDetails{
		NextVisitDate: strings.TrimSpace(c.ReviewDetails.NextVisitDate),
		Notes:         strings.TrimSpace(c.ReviewDetails.Notes),
	}
	return p
}
