package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"session-auth/internal/config"
	"session-auth/internal/db"
	"session-auth/internal/observability"
)

const connectTimeout = 10 * time.Second

// backends owns every external connection the configured drivers need.
type backends struct {
	mongo    *mongo.Database
	postgres *sql.DB
	redis    *redis.Client

	checks  map[string]func(context.Context) error
	closers []func(context.Context) error
}

func openBackends(ctx context.Context, cfg config.Config, logger *observability.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]func(context.Context) error)}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if cfg.NeedsMongo() {
		if err := b.openMongo(ctx, cfg); err != nil {
			_ = b.Close(context.Background())
			return nil, err
		}
		logger.Info("mongo_connected", map[string]any{"database": cfg.MongoDatabase})
	}

	if cfg.NeedsPostgres() {
		if err := b.openPostgres(ctx, cfg, logger); err != nil {
			_ = b.Close(context.Background())
			return nil, err
		}
		logger.Info("postgres_connected", nil)
	}

	if cfg.RefreshDriver == config.DriverRedis {
		if err := b.openRedis(ctx, cfg); err != nil {
			_ = b.Close(context.Background())
			return nil, err
		}
		logger.Info("redis_connected", nil)
	}

	return b, nil
}

func (b *backends) openMongo(ctx context.Context, cfg config.Config) error {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	b.closers = append(b.closers, client.Disconnect)

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	b.mongo = client.Database(cfg.MongoDatabase)
	b.checks["mongo"] = func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	}
	return nil
}

func (b *backends) openPostgres(ctx context.Context, cfg config.Config, logger *observability.Logger) error {
	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	b.closers = append(b.closers, func(context.Context) error { return database.Close() })

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(ctx, database, logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	b.postgres = database
	b.checks["postgres"] = database.PingContext
	return nil
}

func (b *backends) openRedis(ctx context.Context, cfg config.Config) error {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	b.closers = append(b.closers, func(context.Context) error { return client.Close() })

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	b.redis = client
	b.checks["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (b *backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
