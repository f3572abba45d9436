// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package connectors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/rapidaai/interview/pkg/commons"
	"github.com/rapidaai/interview/pkg/configs"
)

// DatabaseConnector hands out request-scoped gorm sessions.
type DatabaseConnector interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected(ctx context.Context) bool
	DB(ctx context.Context) *gorm.DB
}

type gormConnector struct {
	name      string
	logger    commons.Logger
	dialector gorm.Dialector
	maxOpen   int
	maxIdle   int

	mu sync.RWMutex
	db *gorm.DB
}

func NewPostgresConnector(cfg configs.PostgresConfig, logger commons.Logger) DatabaseConnector {
	return &gormConnector{
		name:      "postgres",
		logger:    logger,
		dialector: postgres.Open(cfg.DSN()),
		maxOpen:   cfg.MaxOpenConnection,
		maxIdle:   cfg.MaxIdealConnection,
	}
}

// NewSQLiteConnector opens a file (or ":memory:") database, used for single
// node deployments and tests.
func NewSQLiteConnector(cfg configs.SQLiteConfig, logger commons.Logger) DatabaseConnector {
	path := cfg.Path
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	return &gormConnector{
		name:      "sqlite",
		logger:    logger,
		dialector: sqlite.Open(path),
		maxOpen:   1,
		maxIdle:   1,
	}
}

// NewDatabaseConnector picks the dialect named by cfg.Driver.
func NewDatabaseConnector(cfg configs.DatabaseConfig, logger commons.Logger) (DatabaseConnector, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresConnector(cfg.Postgres, logger), nil
	case "sqlite":
		return NewSQLiteConnector(cfg.SQLite, logger), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func (c *gormConnector) Name() string {
	return c.name
}

func (c *gormConnector) Connect(ctx context.Context) error {
	start := time.Now()
	db, err := gorm.Open(c.dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", c.name, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get %s handle: %w", c.name, err)
	}
	if c.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(c.maxOpen)
	}
	if c.maxIdle > 0 {
		sqlDB.SetMaxIdleConns(c.maxIdle)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.db = db
	c.mu.Unlock()
	c.logger.Benchmark(c.name+".Connect", time.Since(start))
	return nil
}

func (c *gormConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (c *gormConnector) IsConnected(ctx context.Context) bool {
	c.mu.RLock()
	db := c.db
	c.mu.RUnlock()
	if db == nil {
		return false
	}
	sqlDB, err := db.DB()
	if err != nil {
		return false
	}
	return sqlDB.PingContext(ctx) == nil
}

func (c *gormConnector) DB(ctx context.Context) *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db.WithContext(ctx)
}
