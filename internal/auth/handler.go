package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"session-auth/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	cookies *Cookies
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewHandler(service *Service, cookies *Cookies, logger *observability.Logger, metrics *observability.Metrics) *Handler {
	return &Handler{service: service, cookies: cookies, logger: logger, metrics: metrics}
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var body signUpRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := validateSignUp(body); err != nil {
		h.metrics.AuthOutcome("sign_up", "invalid_input")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.service.SignUp(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			h.metrics.AuthOutcome("sign_up", "duplicate_email")
			writeError(w, http.StatusConflict, "user already registered")
			return
		}
		h.internalError(w, "sign_up", err)
		return
	}

	h.metrics.AuthOutcome("sign_up", "ok")
	h.cookies.SetSession(w, tokens)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var body signInRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := validateSignIn(body); err != nil {
		h.metrics.AuthOutcome("sign_in", "invalid_input")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.metrics.AuthOutcome("sign_in", "invalid_credentials")
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.internalError(w, "sign_in", err)
		return
	}

	h.metrics.AuthOutcome("sign_in", "ok")
	h.cookies.SetSession(w, tokens)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed in successfully"})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	access, err := h.service.RefreshAccessToken(r.Context(), RefreshTokenFromRequest(r))
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingToken):
			h.metrics.AuthOutcome("refresh", "missing_token")
			writeError(w, http.StatusUnauthorized, "refresh token missing")
		case errors.Is(err, ErrExpiredToken):
			h.metrics.AuthOutcome("refresh", "expired_token")
			writeError(w, http.StatusUnauthorized, "refresh token expired")
		case errors.Is(err, ErrInvalidToken):
			h.metrics.AuthOutcome("refresh", "invalid_token")
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		default:
			h.internalError(w, "refresh", err)
		}
		return
	}

	h.metrics.AuthOutcome("refresh", "ok")
	h.cookies.SetAccess(w, access)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Token refreshed successfully"})
}

// Logout always clears the session cookies and answers 200; a failed
// revocation is logged and reported, not surfaced.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), RefreshTokenFromRequest(r)); err != nil {
		h.metrics.AuthOutcome("logout", "revoke_failed")
		h.logger.Error("logout_revoke_failed", map[string]any{"error": err.Error()})
		observability.CaptureError(err, map[string]string{"operation": "logout"})
	} else {
		h.metrics.AuthOutcome("logout", "ok")
	}

	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h *Handler) internalError(w http.ResponseWriter, operation string, err error) {
	h.metrics.AuthOutcome(operation, "error")
	h.logger.Error(operation+"_failed", map[string]any{"error": err.Error()})
	observability.CaptureError(err, map[string]string{"operation": operation})
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
