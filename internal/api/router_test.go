package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/automedic/clinic/internal/api"
	"github.com/automedic/clinic/internal/backend"
	"github.com/automedic/clinic/internal/dispatch"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/mockapi"
	"github.com/automedic/clinic/internal/session"
	"github.com/automedic/clinic/pkg/circuitbreaker"
	"github.com/automedic/clinic/pkg/workerpool"
)

type harness struct {
	t      *testing.T
	api    *mockapi.Server
	srv    *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mock, err := mockapi.New(mockapi.Config{SigningKey: []byte("test-key"), BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	remote := httptest.NewServer(mock)
	t.Cleanup(remote.Close)

	breakers := circuitbreaker.NewManager(nil, nil)
	client := backend.New(backend.Config{BaseURL: remote.URL, Timeout: 2 * time.Second}, breakers, nil, nil)
	d, err := dispatch.New(client, nil, workerpool.Config{Workers: 2, QueueSize: 8, GracefulShutdownTimeout: time.Second}, nil, nil)
	require.NoError(t, err)
	d.Start()
	t.Cleanup(func() { _ = d.Close() })

	router := api.NewRouter(api.Deps{
		Sessions:   session.NewManager(client, 0, nil, nil),
		Backend:    client,
		Dispatcher: d,
		Drafts:     prescription.NewDraftStore(0),
		Breakers:   breakers,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &harness{
		t:   t,
		api: mock,
		srv: srv,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (h *harness) do(method, path string, body interface{}) *http.Response {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &buf)
	require.NoError(h.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) form(path string, values url.Values) *http.Response {
	h.t.Helper()
	resp, err := h.client.Post(h.srv.URL+path, "application/x-www-form-urlencoded", strings.NewReader(values.Encode()))
	require.NoError(h.t, err)
	h.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) login() {
	h.t.Helper()
	resp := h.do(http.MethodPost, "/login", map[string]string{"email": mockapi.SeedEmail, "password": mockapi.SeedPassword})
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func validPrescription() map[string]interface{} {
	return map[string]interface{}{
		"symptoms":  "Fever and cough",
		"diagnosis": "Influenza",
		"medications": []map[string]string{
			{"name": "Oseltamivir", "dosage": "75mg", "duration": "5 days"},
		},
		"rehabilitation": map[string]interface{}{"numberOfSessions": "3"},
		"reviewDetails":  map[string]string{"nextVisitDate": "2024-01-10"},
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health", nil).StatusCode)

	resp := h.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGates_WithoutSession(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp = h.do(http.MethodPost, "/patients/1/prescriptions", validPrescription())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, h.api.Calls(http.MethodPost, "/prescription"))
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)

	resp := h.do(http.MethodPost, "/login", map[string]string{"email": mockapi.SeedEmail, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, session.MsgInvalidCredentials, body["error"])

	assert.Equal(t, http.StatusSeeOther, h.do(http.MethodGet, "/", nil).StatusCode)
}

func TestLogin_FormRedirectsAndLogout(t *testing.T) {
	h := newHarness(t)

	resp := h.form("/login", url.Values{"email": {mockapi.SeedEmail}, "password": {mockapi.SeedPassword}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/", nil).StatusCode)

	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/logout", nil).StatusCode)
	assert.Equal(t, http.StatusSeeOther, h.do(http.MethodGet, "/", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, h.do(http.MethodPost, "/logout", nil).StatusCode)
}

func TestPatientsSearch(t *testing.T) {
	h := newHarness(t)
	h.login()

	var patients []map[string]interface{}
	decode(t, h.do(http.MethodGet, "/patients?q=JANE", nil), &patients)
	require.Len(t, patients, 1)
	assert.Equal(t, "Jane Smith", patients[0]["name"])
}

func TestCreatePrescription_ValidationMakesNoCall(t *testing.T) {
	h := newHarness(t)
	h.login()

	body := validPrescription()
	body["symptoms"] = "  "
	body["medications"] = []map[string]string{}
	body["rehabilitation"] = map[string]interface{}{"numberOfSessions": "abc"}

	resp := h.do(http.MethodPost, "/patients/1/prescriptions", body)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, resp, &out)
	assert.Equal(t, map[string]string{
		"symptoms":                        prescription.MsgSymptomsRequired,
		"medications":                     prescription.MsgMedicationsRequired,
		"rehabilitation.numberOfSessions": prescription.MsgSessionsNotNumber,
	}, out.Errors)
	assert.Zero(t, h.api.Calls(http.MethodPost, "/prescription"))
}

func TestCreateAndShare(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.api.FailShareMethod("whatsapp")

	resp := h.do(http.MethodPost, "/patients/2/prescriptions", validPrescription())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID           string   `json:"id"`
		ShareMethods []string `json:"shareMethods"`
	}
	decode(t, resp, &created)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/prescriptions/"+created.ID, resp.Header.Get("Location"))
	assert.Equal(t, []string{"email", "whatsapp", "reception"}, created.ShareMethods)

	stored, ok := h.api.Prescription(created.ID)
	require.True(t, ok)
	assert.Equal(t, mockapi.SeedDoctorID, stored.DoctorID)
	require.NotNil(t, stored.Rehabilitation)
	assert.Equal(t, 3.0, *stored.Rehabilitation.NumberOfSessions)

	var detail map[string]interface{}
	decode(t, h.do(http.MethodGet, "/prescriptions/"+created.ID, nil), &detail)
	assert.Equal(t, "Jane Smith", detail["patientName"])

	resp = h.do(http.MethodPost, "/prescriptions/"+created.ID+"/share", map[string]string{"method": "email"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var shared dispatch.ShareResult
	decode(t, resp, &shared)
	assert.Equal(t, "Prescription sent successfully via email!", shared.Message)

	resp = h.do(http.MethodPost, "/prescriptions/"+created.ID+"/share", map[string]string{"method": "fax"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = h.do(http.MethodPost, "/prescriptions/"+created.ID+"/share-all", map[string][]string{"methods": {"whatsapp", "reception"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var all struct {
		Results []dispatch.ShareResult `json:"results"`
	}
	decode(t, resp, &all)
	require.Len(t, all.Results, 2)
	assert.False(t, all.Results[0].Success)
	assert.Equal(t, "Failed to send via whatsapp", all.Results[0].Message)
	assert.True(t, all.Results[1].Success)

	assert.Len(t, h.api.Shares(), 2)
	_, ok = h.api.Prescription(created.ID)
	assert.True(t, ok, "failed share leaves the prescription intact")

	resp = h.do(http.MethodGet, "/prescriptions/"+created.ID+"/pdf", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestCreatePrescription_BackendFailure(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.api.SetFault(http.MethodPost, "/prescription", http.StatusInternalServerError)

	resp := h.do(http.MethodPost, "/patients/1/prescriptions", validPrescription())
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, prescription.MsgSubmitFailed, body["error"])
	assert.Equal(t, 1, h.api.Calls(http.MethodPost, "/prescription"))
}

func TestCreatePrescription_Form(t *testing.T) {
	h := newHarness(t)
	h.login()

	resp := h.form("/patients/3/prescriptions", url.Values{
		"symptoms":                        {"Thirst"},
		"diagnosis":                       {"Type 2 diabetes"},
		"medications.0.name":              {"Metformin"},
		"medications.0.dosage":            {"500mg"},
		"medications.0.duration":          {"30 days"},
		"rehabilitation.numberOfSessions": {""},
		"reviewDetails.notes":             {"Check HbA1c"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestDraftWorkflow(t *testing.T) {
	h := newHarness(t)
	h.login()

	resp := h.do(http.MethodPost, "/patients/1/drafts", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap prescription.Snapshot
	decode(t, resp, &snap)
	require.Len(t, snap.Prescription.Medications, 1)
	draft := "/drafts/" + snap.ID

	resp = h.do(http.MethodDelete, draft+"/medications/0", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(http.MethodPost, draft+"/medications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &snap)
	assert.Len(t, snap.Prescription.Medications, 2)

	resp = h.do(http.MethodDelete, draft+"/medications/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodPost, draft+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Zero(t, h.api.Calls(http.MethodPost, "/prescription"))

	resp = h.do(http.MethodPut, draft, validPrescription())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(http.MethodPost, draft+"/submit", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, h.api.Calls(http.MethodPost, "/prescription"))

	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, draft, nil).StatusCode)
}

func TestDraftSubmit_BackendFailureKeepsEditing(t *testing.T) {
	h := newHarness(t)
	h.login()

	resp := h.do(http.MethodPost, "/patients/1/drafts", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap prescription.Snapshot
	decode(t, resp, &snap)
	draft := "/drafts/" + snap.ID

	require.Equal(t, http.StatusOK, h.do(http.MethodPut, draft, validPrescription()).StatusCode)

	h.api.SetFault(http.MethodPost, "/prescription", http.StatusInternalServerError)
	assert.Equal(t, http.StatusBadGateway, h.do(http.MethodPost, draft+"/submit", nil).StatusCode)

	resp = h.do(http.MethodGet, draft, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &snap)
	assert.Equal(t, prescription.StateEditing, snap.State)
	assert.Equal(t, prescription.MsgSubmitFailed, snap.Notice)
	assert.Equal(t, "Influenza", snap.Prescription.Diagnosis)

	h.api.ClearFaults()
	assert.Equal(t, http.StatusCreated, h.do(http.MethodPost, draft+"/submit", nil).StatusCode)
	assert.Equal(t, 2, h.api.Calls(http.MethodPost, "/prescription"))
}

func TestSettings(t *testing.T) {
	h := newHarness(t)
	h.login()

	var profile map[string]interface{}
	decode(t, h.do(http.MethodGet, "/settings", nil), &profile)
	assert.Equal(t, "Dr. Emily Carter", profile["name"])

	resp := h.do(http.MethodPost, "/settings", map[string]interface{}{"name": "", "specialization": "x", "clinicInfo": "y", "defaultFee": 10})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = h.do(http.MethodPost, "/settings", map[string]interface{}{"name": "Dr. Ada", "specialization": "GP", "clinicInfo": "Main St", "defaultFee": 40})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "Settings updated successfully", body["message"])

	got, ok := h.api.Doctor(mockapi.SeedDoctorID)
	require.True(t, ok)
	assert.Equal(t, "Dr. Ada", got.Name)

	resp = h.do(http.MethodPost, "/settings", map[string]interface{}{"name": "Dr. Ada", "specialization": "GP", "clinicInfo": "Main St", "defaultFee": "150"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ = h.api.Doctor(mockapi.SeedDoctorID)
	assert.EqualValues(t, 150, got.DefaultFee)

	resp = h.form("/settings", url.Values{"name": {"Dr. Ada"}, "specialization": {"GP"}, "clinicInfo": {"Main St"}, "defaultFee": {"75"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ = h.api.Doctor(mockapi.SeedDoctorID)
	assert.EqualValues(t, 75, got.DefaultFee)

	resp = h.do(http.MethodPost, "/settings", map[string]interface{}{"name": "Dr. Ada", "specialization": "GP", "clinicInfo": "Main St", "defaultFee": "abc"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
