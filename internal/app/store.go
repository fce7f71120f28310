package app

import (
	"context"
	"fmt"

	"carpool/internal/config"
	"carpool/internal/handlers"
	"carpool/internal/repositories/interfaces"
	"carpool/internal/repositories/memory"
	"carpool/internal/repositories/mongodb"
	"carpool/pkg/cache"
	"carpool/pkg/database"
)

func (a *App) openStore(ctx context.Context, cfg *config.Config, redisCache *cache.RedisCache, checks map[string]handlers.HealthCheck) (interfaces.Store, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		a.log.Warn("Using in-memory store, data is lost on restart")
		checks["store"] = func(context.Context) error { return nil }
		return memory.NewStore(), nil
	}

	db, err := OpenMongo(cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	checks["mongodb"] = db.Ping

	// The partial unique index on active_key backs the one-join-per-user rule.
	migrator := database.NewMigrator(db.Database, a.log.Entry())
	if cfg.Database.AutoMigrate {
		if err := migrator.Up(ctx); err != nil {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	} else if err := requireSchema(ctx, migrator); err != nil {
		return nil, err
	}

	// A nil *RedisCache must not end up inside the interface.
	var rideCache cache.Cache
	if redisCache != nil {
		rideCache = redisCache
	}
	return mongodb.NewStore(db.Database, rideCache, cfg.Redis.RideCacheTTL), nil
}

type schemaVersioner interface {
	CurrentVersion(ctx context.Context) (int, error)
	LatestVersion() int
}

// requireSchema refuses to serve against a database behind the latest migration.
func requireSchema(ctx context.Context, migrator schemaVersioner) error {
	current, err := migrator.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if latest := migrator.LatestVersion(); current < latest {
		return fmt.Errorf("schema version %d is behind %d, run carpool migrate", current, latest)
	}
	return nil
}

// OpenMongo connects using the application's database settings.
func OpenMongo(cfg *config.DatabaseConfig) (*database.MongoDB, error) {
	db, err := database.NewMongoDB(&database.DatabaseConfig{
		URI:                    cfg.URI,
		AppName:                cfg.AppName,
		Database:               cfg.Database,
		MaxPoolSize:            cfg.MaxPoolSize,
		MinPoolSize:            cfg.MinPoolSize,
		ConnectTimeout:         cfg.ConnectTimeout,
		SocketTimeout:          cfg.SocketTimeout,
		ServerSelectionTimeout: cfg.SelectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}
