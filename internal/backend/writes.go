package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/automedic/clinic/internal/domain/doctor"
	"github.com/automedic/clinic/internal/domain/prescription"
	"github.com/automedic/clinic/internal/session"
)

// PersistenceError is a write the API did not accept.
// Writes are never retried and never fall back to local data.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "persist " + e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	DoctorID string `json:"doctorId"`
}

// Authenticate verifies credentials against the login endpoint.
// A rejected pair yields session.ErrInvalidCredentials; any other failure is
// returned as is.
func (c *Client) Authenticate(ctx context.Context, email, password string) (session.Session, error) {
	var out loginResponse
	err := c.do(ctx, session.Session{}, "login", http.MethodPost, "/login", loginRequest{Email: email, Password: password}, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden || se.Code == http.StatusNotFound) {
			return session.Session{}, fmt.Errorf("login %s: %w", email, session.ErrInvalidCredentials)
		}
		return session.Session{}, err
	}
	return session.Session{Token: out.Token, DoctorID: out.DoctorID}, nil
}

type profileUpdate struct {
	doctor.Profile
	DoctorID string `json:"doctorId"`
}

// UpdateDoctor saves the session doctor's profile.
func (c *Client) UpdateDoctor(ctx context.Context, sess session.Session, p doctor.Profile) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	body := profileUpdate{Profile: p, DoctorID: sess.DoctorID}
	if err := c.do(ctx, sess, "doctor.update", http.MethodPost, "/doctor/update", body, nil); err != nil {
		return &PersistenceError{Op: "doctor profile", Err: err}
	}
	return nil
}

type createdResponse struct {
	ID string `json:"id"`
}

// CreatePrescription persists sub and returns the new record id.
func (c *Client) CreatePrescription(ctx context.Context, sess session.Session, sub prescription.Submission) (string, error) {
	if err := session.Require(sess); err != nil {
		return "", err
	}
	var out createdResponse
	if err := c.do(ctx, sess, "prescription.create", http.MethodPost, "/prescription", sub, &out); err != nil {
		return "", &PersistenceError{Op: "prescription", Err: err}
	}
	if out.ID == "" {
		return "", &PersistenceError{Op: "prescription", Err: errors.New("response carried no id")}
	}
	return out.ID, nil
}

type shareRequest struct {
	PrescriptionID string `json:"prescriptionId"`
	Method         string `json:"method"`
}

// SendPrescription asks the API to deliver a prescription through one channel.
func (c *Client) SendPrescription(ctx context.Context, sess session.Session, prescriptionID, method string) error {
	if err := session.Require(sess); err != nil {
		return err
	}
	body := shareRequest{PrescriptionID: prescriptionID, Method: method}
	if err := c.do(ctx, sess, "prescription.send", http.MethodPost, "/send-prescription", body, nil); err != nil {
		return &PersistenceError{Op: "send via " + method, Err: err}
	}
	return nil
}
