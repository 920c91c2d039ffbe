package auth

import (
	"errors"
	"net/http"

	"session-auth/internal/observability"
	"session-auth/internal/users"
)

// Guard admits requests carrying a valid access token and places the
// resolved user in the request context (see users.FromContext).
func Guard(service *Service, logger *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := service.ValidateAccessToken(r.Context(), AccessTokenFromRequest(r))
		if err != nil {
			if errors.Is(err, ErrPersistence) {
				logger.Error("guard_lookup_failed", map[string]any{"error": err.Error(), "path": r.URL.Path})
				observability.CaptureError(err, map[string]string{"operation": "guard"})
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(users.WithUser(r.Context(), user)))
	})
}
