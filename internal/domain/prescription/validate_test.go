package prescription

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandidate() *Candidate {
	return &Candidate{
		Symptoms:  "Headache",
		Diagnosis: "Migraine",
		Medications: []Medication{
			{Name: "Sumatriptan", Dosage: "50mg", Duration: "5 days"},
		},
		ReviewDetails: &ReviewDetails{},
	}
}

func fieldErrors(t *testing.T, err error) FieldErrors {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Fields
}

func TestValidate_MinimalValid(t *testing.T) {
	p, err := Validate(validCandidate())
	require.NoError(t, err)

	assert.Equal(t, "Headache", p.Symptoms)
	require.Len(t, p.Medications, 1)
	assert.Equal(t, "Sumatriptan", p.Medications[0].Name)
	assert.Nil(t, p.Rehabilitation)
	assert.Nil(t, p.Investigations)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	c := validCandidate()
	c.Symptoms = ""
	c.Medications = []Medication{
		{Name: "Ibuprofen", Dosage: "200mg", Duration: "3 days"},
		{Name: "", Dosage: "", Duration: "1 week"},
	}

	_, err := Validate(c)

	assert.Equal(t, FieldErrors{
		"symptoms":             MsgSymptomsRequired,
		"medications.1.name":   MsgMedicationName,
		"medications.1.dosage": MsgDosageRequired,
	}, fieldErrors(t, err))
}

func TestValidate_EmptyMedicationsIsOneTopLevelError(t *testing.T) {
	c := validCandidate()
	c.Medications = nil

	errs := fieldErrors(t, mustFail(t, c))
	assert.Equal(t, FieldErrors{"medications": MsgMedicationsRequired}, errs)
}

func TestValidate_NumberOfSessions(t *testing.T) {
	tests := []struct {
		name    string
		raw     NumericText
		want    *float64
		wantErr string
	}{
		{name: "numeric text", raw: "12", want: ptr(12)},
		{name: "blank is absent", raw: "  "},
		{name: "zero", raw: "0", want: ptr(0)},
		{name: "non numeric", raw: "abc", wantErr: MsgSessionsNotNumber},
		{name: "negative", raw: "-3", wantErr: MsgSessionsNegative},
		{name: "not a number literal", raw: "NaN", wantErr: MsgSessionsNotNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandidate()
			c.Rehabilitation = &RehabilitationCandidate{TherapyType: "Physio", NumberOfSessions: tt.raw}

			p, err := Validate(c)
			if tt.wantErr != "" {
				assert.Equal(t, FieldErrors{"rehabilitation.numberOfSessions": tt.wantErr}, fieldErrors(t, err))
				return
			}
			require.NoError(t, err)
			require.NotNil(t, p.Rehabilitation)
			assert.Equal(t, tt.want, p.Rehabilitation.NumberOfSessions)
		})
	}
}

func TestValidate_MissingReviewDetails(t *testing.T) {
	c := validCandidate()
	c.ReviewDetails = nil

	assert.Equal(t, FieldErrors{"reviewDetails": MsgReviewDetailsRequired}, fieldErrors(t, mustFail(t, c)))
}

func TestValidate_WhitespaceIsBlank(t *testing.T) {
	c := validCandidate()
	c.Diagnosis = "   "

	assert.Equal(t, FieldErrors{"diagnosis": MsgDiagnosisRequired}, fieldErrors(t, mustFail(t, c)))
}

func TestCandidate_NumberOfSessionsFromJSON(t *testing.T) {
	body := `{
		"symptoms": "Back pain",
		"diagnosis": "Lumbar strain",
		"medications": [{"name": "Naproxen", "dosage": "250mg", "duration": "7 days"}],
		"rehabilitation": {"therapyType": "Physiotherapy", "numberOfSessions": 8},
		"reviewDetails": {"nextVisitDate": "2024-02-01"}
	}`

	var c Candidate
	require.NoError(t, json.Unmarshal([]byte(body), &c))
	assert.Equal(t, NumericText("8"), c.Rehabilitation.NumberOfSessions)

	p, err := Validate(&c)
	require.NoError(t, err)
	assert.Equal(t, 8.0, *p.Rehabilitation.NumberOfSessions)

	require.NoError(t, json.Unmarshal([]byte(`{"numberOfSessions": "oops"}`), c.Rehabilitation))
	_, err = Validate(&c)
	assert.Equal(t, FieldErrors{"rehabilitation.numberOfSessions": MsgSessionsNotNumber}, fieldErrors(t, err))
}

func TestSubmission_DoctorComesFromSession(t *testing.T) {
	p, err := Validate(validCandidate())
	require.NoError(t, err)

	sub := NewSubmission(sessionFor("doc-7"), "patient-1", p)
	raw, err := json.Marshal(sub)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "doc-7", decoded["doctorId"])
	assert.Equal(t, "patient-1", decoded["patientId"])
	assert.Equal(t, "Migraine", decoded["diagnosis"])
}

func mustFail(t *testing.T, c *Candidate) error {
	t.Helper()
	_, err := Validate(c)
	require.Error(t, err)
	return err
}

func ptr(f float64) *float64 { return &f }
