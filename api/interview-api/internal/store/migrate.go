// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	internal_entity "github.com/rapidaai/interview/api/interview-api/internal/entity"
	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
	"github.com/rapidaai/interview/pkg/connectors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrations exposes the embedded SQL as a golang-migrate source.
func Migrations() (source.Driver, error) {
	return iofs.New(migrationFS, "migrations")
}

// Migrate brings the schema up to date. Postgres runs the versioned SQL files;
// sqlite has no migration driver wired, so the entity is auto-migrated.
func Migrate(ctx context.Context, cfg configs.DatabaseConfig, db connectors.DatabaseConnector, logger commons.Logger) error {
	switch cfg.Driver {
	case "postgres":
		src, err := Migrations()
		if err != nil {
			return fmt.Errorf("failed to open migrations: %w", err)
		}
		m, err := migrate.NewWithSourceInstance("iofs", src, cfg.Postgres.URL())
		if err != nil {
			return fmt.Errorf("failed to initialize migrations: %w", err)
		}
		defer m.Close()
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
		version, dirty, _ := m.Version()
		logger.Infof("database migrated: version=%d, dirty=%t", version, dirty)
		return nil
	case "sqlite":
		if err := db.DB(ctx).AutoMigrate(&internal_entity.Interview{}, &internal_entity.InterviewResult{}); err != nil {
			return fmt.Errorf("failed to auto-migrate interview tables: %w", err)
		}
		logger.Infof("database auto-migrated: driver=sqlite")
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
