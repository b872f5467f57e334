package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Handlers exposes the auth REST surface over a Manager.
type Handlers struct {
	mgr *Manager
}

func NewHandlers(mgr *Manager) *Handlers { return &Handlers{mgr: mgr} }

type passwordRequest struct {
	Password string `json:"password"`
}

type statusResponse struct {
	Authenticated bool `json:"authenticated"`
	AuthEnabled   bool `json:"auth_enabled"`
}

// Status handles GET /api/auth/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	authenticated := false
	if cookie, err := r.Cookie(CookieName); err == nil {
		authenticated = h.mgr.VerifyToken(cookie.Value)
	}
	respondJSON(w, http.StatusOK, statusResponse{Authenticated: authenticated, AuthEnabled: h.mgr.Enabled()})
}

// Login handles POST /api/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.mgr.Login(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAuthNotEnabled):
			respondError(w, http.StatusBadRequest, "auth not enabled")
		case errors.Is(err, ErrWrongPassword):
			respondError(w, http.StatusUnauthorized, "incorrect password")
		default:
			respondError(w, http.StatusInternalServerError, "login failed")
		}
		return
	}
	setSessionCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Logout handles POST /api/auth/logout. Sessions are stateless JWTs, so
// logout only clears the cookie client-side.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Setup handles POST /api/auth/setup.
func (h *Handlers) Setup(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.mgr.SetPassword(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrPasswordTooShort):
			respondError(w, http.StatusBadRequest, "password must be at least 4 characters")
		case errors.Is(err, ErrAlreadyEnabled):
			respondError(w, http.StatusBadRequest, "password already configured")
		default:
			respondError(w, http.StatusInternalServerError, "setup failed")
		}
		return
	}
	setSessionCookie(w, token)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   SessionTTL(),
		SameSite: http.SameSiteStrictMode,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"error": http.StatusText(status), "message": message})
}
