package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"session-auth/internal/auth"
	"session-auth/internal/config"
	"session-auth/internal/content"
	"session-auth/internal/maintenance"
	"session-auth/internal/observability"
	"session-auth/internal/users"
)

type Options struct {
	Logger *observability.Logger
	// Now overrides the clock used for token lifetimes.
	Now func() time.Time
}

type Runtime struct {
	Handler http.Handler
	Sweeper *maintenance.Sweeper
	Close   func() error
}

func Build(cfg config.Config, options Options) (*Runtime, error) {
	logger := options.Logger
	if logger == nil {
		logger = observability.NewLogger(cfg.LogLevel)
	}

	ctx := context.Background()
	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rt, err := build(ctx, cfg, options, logger, b)
	if err != nil {
		_ = b.Close(context.Background())
		return nil, err
	}
	return rt, nil
}

func build(ctx context.Context, cfg config.Config, options Options, logger *observability.Logger, b *backends) (*Runtime, error) {
	sessionCfg := auth.SessionConfig{
		Secret:         []byte(cfg.JWTSecret),
		AccessTTL:      cfg.AccessTokenTTL,
		RefreshTTL:     cfg.RefreshTokenTTL,
		PurgeBatchSize: cfg.CleanupBatchSize,
		Now:            options.Now,
	}

	userStore, err := newUserStore(ctx, cfg, b)
	if err != nil {
		return nil, err
	}
	refreshStore, err := newRefreshStore(ctx, cfg, sessionCfg, b)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewSigner(sessionCfg)
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}

	metrics := observability.NewMetrics()
	service := auth.NewService(userStore, auth.NewHasher(cfg.HashWorkers), signer, refreshStore, logger).WithClock(options.Now)
	cookies := auth.NewCookies(auth.CookieOptions{
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
		Secure:     cfg.CookieSecure,
		SameSite:   cfg.CookieSameSite,
		Domain:     cfg.CookieDomain,
	})
	authHandler := auth.NewHandler(service, cookies, logger, metrics)
	contentHandler := content.NewHandler(content.NewService())
	usersHandler := users.NewHandler()
	cleanupHandler := maintenance.NewCleanupHandler(refreshStore, logger, metrics, cfg.CronSecret)
	loginLimiter := auth.NewRateLimiter(cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow).WithMetrics(metrics)

	guard := func(h http.HandlerFunc) http.Handler {
		return auth.Guard(service, logger, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/signUp", loginLimiter.Middleware(http.HandlerFunc(authHandler.SignUp)))
	mux.Handle("POST /auth/signIn", loginLimiter.Middleware(http.HandlerFunc(authHandler.SignIn)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /content/quote", guard(contentHandler.Quote))
	mux.Handle("GET /users/username", guard(usersHandler.Username))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(b.checks))
	mux.Handle("GET /metrics", metrics.Handler())

	handler := observability.CORSMiddleware(cfg.CORSAllowedOrigins,
		observability.RecoverMiddleware(logger,
			observability.RequestLoggingMiddleware(logger, metrics, mux)))

	logger.Info("runtime_ready", map[string]any{
		"store_driver":   cfg.StoreDriver,
		"refresh_driver": cfg.RefreshDriver,
	})

	return &Runtime{
		Handler: handler,
		Sweeper: maintenance.NewSweeper(refreshStore, cfg.SweepInterval, logger, metrics),
		Close: func() error {
			observability.FlushSentry()
			return b.Close(context.Background())
		},
	}, nil
}

func newUserStore(ctx context.Context, cfg config.Config, b *backends) (users.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store := users.NewMongoStore(b.mongo)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure user indexes: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		return users.NewPostgresStore(b.postgres), nil
	case config.DriverMemory:
		return users.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func newRefreshStore(ctx context.Context, cfg config.Config, sessionCfg auth.SessionConfig, b *backends) (auth.RefreshTokenStore, error) {
	switch cfg.RefreshDriver {
	case config.DriverMongo:
		store := auth.NewMongoRefreshStore(b.mongo, sessionCfg)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure refresh token indexes: %w", err)
		}
		return store, nil
	case config.DriverPostgres:
		return auth.NewPostgresRefreshStore(b.postgres, sessionCfg), nil
	case config.DriverRedis:
		return auth.NewRedisRefreshStore(b.redis, cfg.RedisKeyPrefix, sessionCfg), nil
	case config.DriverMemory:
		return auth.NewMemoryRefreshStore(sessionCfg), nil
	default:
		return nil, fmt.Errorf("unsupported REFRESH_STORE %q", cfg.RefreshDriver)
	}
}

func healthHandler(checks map[string]func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				body[name] = "unavailable"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
