package config

import (
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	StoreDriver   string
	RefreshDriver string

	MongoURI      string
	MongoDatabase string

	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
	DBConnMaxIdleTime    time.Duration
	RunMigrations        bool
	RedisURL             string
	RedisKeyPrefix       string
	JWTSecret            string
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	HashWorkers          int
	CookieSecure         bool
	CookieSameSite       http.SameSite
	CookieDomain         string
	CORSAllowedOrigins   []string
	SentryDSN            string
	CronSecret           string
	SweepInterval        time.Duration
	CleanupBatchSize     int
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration
}

// Load reads the process environment. When loadDotEnv is set a .env file in
// the working directory is applied first; a missing file is not an error.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	cfg := Config{
		AppEnv:               envOrDefault("APP_ENV", "development"),
		Port:                 envOrDefault("PORT", "3000"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		StoreDriver:          strings.ToLower(envOrDefault("STORE_DRIVER", DriverMongo)),
		MongoURI:             strings.TrimSpace(os.Getenv("MONGODB_URI")),
		MongoDatabase:        envOrDefault("MONGODB_DATABASE", "auth"),
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxOpenConns:       envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:       envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:    envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime:    envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		RunMigrations:        EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", true),
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		RedisKeyPrefix:       envOrDefault("REDIS_KEY_PREFIX", "refresh"),
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AccessTokenTTL:       envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTL:      envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		HashWorkers:          envIntOrDefault("HASH_WORKERS", runtime.GOMAXPROCS(0)),
		CookieSecure:         EnvBoolOrDefault("COOKIE_SECURE", false),
		CookieSameSite:       sameSiteOrDefault("COOKIE_SAMESITE", http.SameSiteLaxMode),
		CookieDomain:         strings.TrimSpace(os.Getenv("COOKIE_DOMAIN")),
		CORSAllowedOrigins:   envListOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		SentryDSN:            strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		CronSecret:           strings.TrimSpace(os.Getenv("CRON_SECRET")),
		SweepInterval:        envMinutesOrZero("SWEEP_INTERVAL_MINUTES", 60),
		CleanupBatchSize:     envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		LoginRateLimitMax:    envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	}
	cfg.RefreshDriver = strings.ToLower(envOrDefault("REFRESH_STORE", cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("missing required env: JWT_SECRET")
	}

	switch c.StoreDriver {
	case DriverMongo, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.RefreshDriver {
	case DriverMongo, DriverPostgres, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unsupported REFRESH_STORE %q", c.RefreshDriver)
	}

	if c.NeedsMongo() && c.MongoURI == "" {
		return fmt.Errorf("missing required env: MONGODB_URI")
	}
	if c.NeedsPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("missing required env: DATABASE_URL")
	}
	if c.RefreshDriver == DriverRedis && c.RedisURL == "" {
		return fmt.Errorf("missing required env: REDIS_URL")
	}

	return nil
}

func (c Config) NeedsMongo() bool {
	return c.StoreDriver == DriverMongo || c.RefreshDriver == DriverMongo
}

func (c Config) NeedsPostgres() bool {
	return c.StoreDriver == DriverPostgres || c.RefreshDriver == DriverPostgres
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

// envMinutesOrZero treats an explicit "0" as off.
func envMinutesOrZero(name string, fallback int) time.Duration {
	if strings.TrimSpace(os.Getenv(name)) == "0" {
		return 0
	}
	return envMinutesOrDefault(name, fallback)
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func envListOrDefault(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func sameSiteOrDefault(name string, fallback http.SameSite) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return fallback
	}
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
