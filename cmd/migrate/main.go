// Package main provides a CLI tool for running database migrations.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/portfolio-versioning/internal/config"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/storage"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		steps  = flag.Int("steps", 1, "Number of migrations to roll back with -action down")
		path   = flag.String("path", "", "Migrations directory (defaults to MIGRATIONS_PATH)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	migrationsPath := cfg.Storage.MigrationsPath
	if *path != "" {
		migrationsPath = *path
	}

	if err := runPostgresMigrations(cfg.Database.Postgres.URL(), migrationsPath, *action, *steps, logger); err != nil {
		logger.WithError(err).Fatal("Postgres migration failed")
	}
}

func runPostgresMigrations(databaseURL, migrationsPath, action string, steps int, logger *logging.Logger) error {
	mg, err := storage.NewMigrator(databaseURL, migrationsPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := mg.Close(); err != nil {
			logger.WithError(err).Warn("Error closing migrator")
		}
	}()

	switch action {
	case "up":
		logger.Info("Running Postgres migrations...")
		if err := mg.Up(); err != nil {
			return err
		}
		logger.Info("Postgres migrations completed successfully")

	case "down":
		logger.Infof("Rolling back %d Postgres migration(s)...", steps)
		if err := mg.Down(steps); err != nil {
			return err
		}
		logger.Info("Postgres migration rolled back successfully")

	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		logger.WithFields(map[string]interface{}{
			"version": version,
			"dirty":   dirty,
		}).Info("Current Postgres migration version")

	default:
		return fmt.Errorf("unknown action: %s", action)
	}

	return nil
}
