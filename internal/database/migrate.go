package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/domain-profiler/internal/database/migrations"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m   *migrate.Migrate
	log logger.Logger
}

// NewMigrator builds a migrator over an open connection. The migrate driver
// owns db afterwards; callers use a dedicated connection for it.
func NewMigrator(db *sqlx.DB, log logger.Logger) (*Migrator, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}

	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("No pending migrations")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}

	mg.logVersion("Migrations applied successfully")
	return nil
}

// Down rolls back steps migrations (at least one).
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		steps = 1
	}

	if err := mg.m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			mg.log.Info("No migrations to roll back")
			return nil
		}
		return fmt.Errorf("roll back migrations: %w", err)
	}

	mg.logVersion("Migrations rolled back", logger.Int("steps", steps))
	return nil
}

func (mg *Migrator) logVersion(msg string, fields ...logger.Field) {
	version, dirty, err := mg.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		mg.log.Warn("Could not read migration version", logger.Error(err))
		return
	}
	fields = append(fields, logger.Int("version", int(version)), logger.Bool("dirty", dirty))
	mg.log.Info(msg, fields...)
}
