package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/session"
)

// AuthHandler handles login and logout.
type AuthHandler struct {
	sessions *session.Manager
	secure   bool
	logger   *zap.Logger
}

// NewAuthHandler creates a new handler
func NewAuthHandler(sessions *session.Manager, secureCookies bool, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{sessions: sessions, secure: secureCookies, logger: logger}
}

// LoginRequest is the login form.
type LoginRequest struct {
	Email    string `json:"email" schema:"email"`
	Password string `json:"password" schema:"password"`
}

// Login handles POST /login. Form posts are redirected to the dashboard on success.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	store := session.NewCookieStore(w, r, h.secure)
	if err := h.sessions.Login(r.Context(), store, req.Email, req.Password); err != nil {
		writeError(w, h.logger, err, session.MsgLoginUnavailable)
		return
	}

	if isForm(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s, _ := store.Load()
	writeJSON(w, http.StatusOK, map[string]string{"doctorId": s.DoctorID})
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(session.NewCookieStore(w, r, h.secure))

	if isForm(r) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
