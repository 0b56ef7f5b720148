package mockapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{SigningKey: []byte("test-key"), BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/login", "", map[string]string{"email": SeedEmail, "password": SeedPassword})
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Token    string `json:"token"`
		DoctorID string `json:"doctorId"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Equal(t, SeedDoctorID, out.DoctorID)
	return out.Token
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	assert.NotEmpty(t, login(t, s))

	w := do(t, s, http.MethodPost, "/login", "", map[string]string{"email": SeedEmail, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWritesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, http.MethodPost, "/prescription", "", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodPost, "/prescription", "forged", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAndSharePrescription(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	body := map[string]interface{}{
		"symptoms":      "Headache",
		"diagnosis":     "Migraine",
		"medications":   []map[string]string{{"name": "Sumatriptan", "dosage": "50mg", "duration": "5 days"}},
		"reviewDetails": map[string]string{},
		"patientId":     "2",
		"doctorId":      SeedDoctorID,
	}
	w := do(t, s, http.MethodPost, "/prescription", token, body)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))

	sub, ok := s.Prescription(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Migraine", sub.Diagnosis)

	w = do(t, s, http.MethodGet, "/prescription/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"patientName":"Jane Smith"`)

	s.FailShareMethod("whatsapp")
	w = do(t, s, http.MethodPost, "/send-prescription", token, map[string]string{"prescriptionId": created.ID, "method": "whatsapp"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	w = do(t, s, http.MethodPost, "/send-prescription", token, map[string]string{"prescriptionId": created.ID, "method": "email"})
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, s.Shares(), 1)
	assert.Equal(t, "email", s.Shares()[0].Method)
	assert.Equal(t, 2, s.Calls(http.MethodPost, "/send-prescription"))
}

func TestCreateRejectsForeignDoctor(t *testing.T) {
	s := newTestServer(t)
	token := login(t, s)

	w := do(t, s, http.MethodPost, "/prescription", token, map[string]interface{}{
		"medications": []map[string]string{{"name": "x"}},
		"patientId":   "1",
		"doctorId":    "someone-else",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFaultInjection(t *testing.T) {
	s := newTestServer(t)
	s.SetFault(http.MethodGet, "/patients", http.StatusServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/patients", "", nil).Code)

	s.ClearFaults()
	w := do(t, s, http.MethodGet, "/patients?doctor_id="+SeedDoctorID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Peter Jones")
}
