// Package restore implements the Restoration Tool command: it moves finished
// domains back into the ingestion queue.
package restore

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Command returns the restore command.
func Command(deps *common.CommandDeps) *cobra.Command {
	var (
		status     string
		domainName string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Re-queue finished domains for another attempt",
		Long: `Deletes the selected records and re-creates their queue entries in one
transaction. Select either a status (failed, success, skipped, processing or all)
or a single domain.

"all" covers the terminal statuses only. A processing record may belong to a
worker that is still running: restoring it by status or name clears that
worker's lock, so only do it for workers known to be gone.`,
		Example: `  domain-profiler restore --status failed
  domain-profiler restore --domain example.com --dry-run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}

			filter, err := database.NewRestoreFilter(status, domainName)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := database.NewRestoreRepository(db)
			var report database.RestoreReport
			if dryRun {
				report, err = repo.Preview(ctx, filter)
			} else {
				report, err = repo.Restore(ctx, filter)
			}
			if err != nil {
				return err
			}

			deps.Logger.Info("Restore finished",
				logger.String("filter", filter.String()),
				logger.Int64("restored", report.Restored),
				logger.Int64("deleted", report.Deleted),
				logger.Bool("dry_run", report.DryRun),
			)
			RenderReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "restore records with this status: failed, success, skipped, processing or all (terminal statuses)")
	cmd.Flags().StringVar(&domainName, "domain", "", "restore a single domain")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be restored without writing")
	cmd.MarkFlagsMutuallyExclusive("status", "domain")
	cmd.MarkFlagsOneRequired("status", "domain")
	return cmd
}

// RenderReport prints the restore counts as a table.
func RenderReport(w io.Writer, report database.RestoreReport) {
	t := common.NewTable(w, table.Row{"Filter", "Restored", "Deleted", "Dry run"})
	t.AppendRow(table.Row{report.Filter, report.Restored, report.Deleted, report.DryRun})
	t.Render()
	if report.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was written.")
	}
}
