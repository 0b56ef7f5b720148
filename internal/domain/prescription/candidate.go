package prescription

import (
	"bytes"
	"encoding/json"
	"reflect"
)

// NumericText holds a number as the user typed it.
// JSON numbers and JSON strings are both accepted; coercion happens at validation.
type NumericText string

// UnmarshalJSON keeps the raw value so a bad input is reported by the validator
// at its own field instead of failing the whole body.
func (n *NumericText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NumericText(s)
	default:
		*n = NumericText(b)
	}
	return nil
}

// ConvertNumericText is a gorilla/schema converter for form values.
func ConvertNumericText(value string) reflect.Value {
	return reflect.ValueOf(NumericText(value))
}

// RehabilitationCandidate is the unvalidated therapy plan.
type RehabilitationCandidate struct {
	TherapyType      string      `json:"therapyType,omitempty" schema:"therapyType"`
	NumberOfSessions NumericText `json:"numberOfSessions,omitempty" schema:"numberOfSessions"`
}

// Candidate is a prescription as entered, before validation.
type Candidate struct {
	Symptoms           string                   `json:"symptoms" schema:"symptoms"`
	Diagnosis          string                   `json:"diagnosis" schema:"diagnosis"`
	Medications        []Medication             `json:"medications" schema:"medications"`
	Investigations     *Investigations          `json:"investigations,omitempty" schema:"investigations"`
	ClinicalProcedures *ClinicalProcedures      `json:"clinicalProcedures,omitempty" schema:"clinicalProcedures"`
	Rehabilitation     *RehabilitationCandidate `json:"rehabilitation,omitempty" schema:"rehabilitation"`
	ReviewDetails      *ReviewDetails           `json:"reviewDetails,omitempty" schema:"reviewDetails"`
}

// NewCandidate returns the initial form state: every section present and
// a single empty medication entry.
func NewCandidate() Candidate {
	return Candidate{
		Medications:        []Medication{{}},
		Investigations:     &Investigations{},
		ClinicalProcedures: &ClinicalProcedures{},
		Rehabilitation:     &RehabilitationCandidate{},
		ReviewDetails:      &ReviewDetails{},
	}
}

// Clone returns a deep copy.
func (c Candidate) Clone() Candidate {
	out := c
	out.Medications = append([]Medication(nil), c.Medications...)
	if c.Investigations != nil {
		v := *c.Investigations
		out.Investigations = &v
	}
	if c.ClinicalProcedures != nil {
		v := *c.ClinicalProcedures
		out.ClinicalProcedures = &v
	}
	if c.Rehabilitation != nil {
		v := *c.Rehabilitation
		out.Rehabilitation = &v
	}
	if c.ReviewDetails != nil {
		v := *c.ReviewDetails
		out.ReviewDetails = &v
	}
	return out
}
