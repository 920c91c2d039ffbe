package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"session-auth/internal/app"
	"session-auth/internal/config"
	"session-auth/internal/observability"
)

var (
	initOnce   sync.Once
	apiRuntime *app.Runtime
	initErr    error
)

// Handler is the serverless entrypoint. The runtime is built once per
// instance; expired refresh tokens are purged by the cron cleanup route
// because no background sweeper runs here.
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(func() {
		cfg, err := config.Load(false)
		if err != nil {
			initErr = err
			return
		}
		cfg.RunMigrations = config.EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false)

		logger := observability.NewLogger(cfg.LogLevel)
		if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv); err != nil {
			logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
		}

		apiRuntime, initErr = app.Build(cfg, app.Options{Logger: logger})
		if initErr != nil {
			logger.Error("bootstrap_failed", map[string]any{"error": initErr.Error()})
		}
	})

	if initErr != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	apiRuntime.Handler.ServeHTTP(w, r)
}
