// Package common provides shared utilities for command implementations.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// ErrNotInitialized is returned when a command runs before the root command
// loaded its dependencies.
var ErrNotInitialized = errors.New("command dependencies not initialized")

// CommandDeps holds the dependencies shared by all commands.
type CommandDeps struct {
	Config  *config.Config
	Logger  logger.Logger
	Version string
}

// Validate ensures all required dependencies are present.
func (d *CommandDeps) Validate() error {
	if d == nil || d.Config == nil || d.Logger == nil {
		return ErrNotInitialized
	}
	return nil
}

// OpenDB validates the configuration and connects to Postgres.
func (d *CommandDeps) OpenDB(ctx context.Context) (*sqlx.DB, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if err := d.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return database.NewPostgresConnection(ctx, d.Config.Database, d.Logger)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
