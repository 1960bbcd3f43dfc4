// Package migrate implements the schema migration commands.
package migrate

import (
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/internal/database"
)

// Command returns the migrate command group.
func Command(deps *common.CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m *database.Migrator) error {
				return m.Up()
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, deps, func(m *database.Migrator) error {
				return m.Down(steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

// withMigrator runs fn over a dedicated connection. The migrate driver closes
// the connection it was built on, so it is never shared.
func withMigrator(cmd *cobra.Command, deps *common.CommandDeps, fn func(*database.Migrator) error) error {
	db, err := deps.OpenDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := database.NewMigrator(db, deps.Logger)
	if err != nil {
		return err
	}
	return fn(m)
}
