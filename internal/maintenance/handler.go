package maintenance

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"session-auth/internal/observability"
)

// Purger removes refresh tokens that can no longer be used.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deletedRefreshTokens"`
}

type CleanupHandler struct {
	purger     Purger
	logger     *observability.Logger
	metrics    *observability.Metrics
	cronSecret string
}

func NewCleanupHandler(purger Purger, logger *observability.Logger, metrics *observability.Metrics, cronSecret string) *CleanupHandler {
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		metrics:    metrics,
		cronSecret: strings.TrimSpace(cronSecret),
	}
}

// Handle is disabled (404) until CRON_SECRET is configured.
func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(parts[1])), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deleted, err := purge(r.Context(), h.purger, h.logger, h.metrics, "endpoint")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": CleanupResult{DeletedRefreshTokens: deleted},
	})
}

func purge(ctx context.Context, purger Purger, logger *observability.Logger, metrics *observability.Metrics, trigger string) (int64, error) {
	deleted, err := purger.PurgeExpired(ctx)
	if err != nil {
		logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error(), "trigger": trigger})
		observability.CaptureError(err, map[string]string{"operation": "cleanup", "trigger": trigger})
		return 0, err
	}

	metrics.RefreshTokensPurged(deleted)
	logger.Info("auth_cleanup_completed", map[string]any{
		"deleted_refresh_tokens": deleted,
		"trigger":                trigger,
	})
	return deleted, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
