package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/stationsync/internal/shared"
)

// Setup creates the config file when missing, initializes the database, runs migrations and
// creates the station store folders.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if r.configPath != "" {
		if _, err := os.Stat(r.configPath); err != nil {
			r.logger.Info("config file not found, creating from template", "path", r.configPath)
			if err := shared.CreateConfigFile(r.configPath); err != nil {
				r.logger.Warn("failed to create config file, using defaults", "error", err)
			} else if err := r.loadConfig(); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			}
		}
	}
	config := r.config

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	for _, dir := range []string{config.CollectionDir(), config.ImagesDir(), config.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return r.writePlain("✓ Station store ready at %s\n", config.Storage.Root)
}
