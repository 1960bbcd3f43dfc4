// Package database implements the ingestion queue and the result store on Postgres.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/retry"
)

const (
	// DefaultPingTimeout bounds each connection check.
	DefaultPingTimeout = 5 * time.Second
	connectAttempts    = 5
)

// NewPostgresConnection opens the pool and pings it, retrying transient
// failures so workers started alongside the database do not crash-loop.
func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = connectAttempts
	retryCfg.InitialDelay = time.Second

	pingErr := retry.Retry(ctx, retryCfg, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			log.Warn("Database not reachable yet", logger.Error(err))
			return err
		}
		return nil
	})
	if pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}
