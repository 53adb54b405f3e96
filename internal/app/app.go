// Package app wires configuration into the storage, cache and versioning
// layers shared by the server and the command line tools.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/portfolio-versioning/internal/circuitbreaker"
	"github.com/portfolio-versioning/internal/config"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/retry"
	"github.com/portfolio-versioning/internal/service"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/versioning"
)

// App holds the long-lived components of a process
type App struct {
	Store   storage.Store
	Redis   *storage.RedisCache
	Engine  *versioning.Engine
	Service *service.PortfolioService

	logger *logging.Logger
}

// New connects the configured store and cache and builds the versioning
// engine. reg may be nil when metrics are not exported.
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *logging.Logger) (*App, error) {
	a := &App{logger: logger}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		a.Store = storage.NewMemoryStore()
		logger.Warn("Using in-memory storage; versions are lost on exit")

	case config.DriverPostgres:
		if cfg.Storage.AutoMigrate {
			if err := storage.RunMigrations(cfg.Database.Postgres.URL(), cfg.Storage.MigrationsPath, logger); err != nil {
				return nil, err
			}
		}
		var db *storage.PostgresDB
		err := retry.WithRetry(logging.WithLogger(ctx, logger), func(ctx context.Context, attempt int) error {
			var err error
			db, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Store = storage.NewPostgresStore(db)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	var cache *storage.VersionCache
	if cfg.Cache.Enabled {
		redis, err := storage.NewRedisCache(ctx, &cfg.Database.Redis)
		if err != nil {
			// Versions are immutable, so the cache is an optimisation only
			logger.WithError(err).Warn("Redis unavailable, version cache disabled")
		} else {
			a.Redis = redis
			cache = storage.NewVersionCache(redis, cfg.Cache.VersionTTL).
				WithBreaker(circuitbreaker.New(circuitbreaker.DefaultConfig("redis-version-cache"), logger))
		}
	}

	a.Engine = versioning.NewEngine(a.Store, cache, cfg.Versioning, reg, logger)
	a.Service = service.NewPortfolioService(a.Store, a.Engine, logger)

	logger.WithFields(map[string]interface{}{
		"storage": cfg.Storage.Driver,
		"cache":   cache != nil,
	}).Info("Application initialized")
	return a, nil
}

// Ping checks the store and, when configured, the cache
func (a *App) Ping(ctx context.Context) error {
	if err := a.Store.Ping(ctx); err != nil {
		return apperrors.NewServiceUnavailableError("database", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx); err != nil {
			return apperrors.NewServiceUnavailableError("cache", err)
		}
	}
	return nil
}

// Close releases every connection
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis")
		}
	}
	a.Store.Close()
}
