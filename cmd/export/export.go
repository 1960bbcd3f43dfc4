// Package export implements the command that copies finished records into
// Elasticsearch.
package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/internal/database"
	internalexport "github.com/jonesrussell/domain-profiler/internal/export"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Command returns the export command.
func Command(deps *common.CommandDeps) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Index unexported domain records into Elasticsearch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			cfg := deps.Config
			if cmd.Flags().Changed("batch-size") {
				cfg.Elasticsearch.BatchSize = batchSize
			}
			if err := cfg.ValidateExport(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := common.SignalContext(cmd.Context())
			defer stop()

			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			client, err := internalexport.NewClient(ctx, cfg.Elasticsearch, deps.Logger)
			if err != nil {
				return err
			}

			exporter := internalexport.NewExporter(
				database.NewRecordRepository(db), client,
				cfg.Elasticsearch.Index, cfg.Elasticsearch.BatchSize, deps.Logger,
			)
			if err := exporter.EnsureIndex(ctx); err != nil {
				return err
			}

			report, runErr := exporter.Run(ctx)
			RenderReport(cmd.OutOrStdout(), cfg.Elasticsearch.Index, report)
			if errors.Is(runErr, internalexport.ErrPartialBatch) {
				deps.Logger.Warn("Export stopped on rejected documents",
					logger.Int("rejected", report.Rejected))
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per bulk request (defaults to config)")
	return cmd
}

// RenderReport prints the outcome of an export run.
func RenderReport(w io.Writer, index string, report internalexport.Report) {
	t := common.NewTable(w, table.Row{"Index", "Batches", "Indexed", "Rejected"})
	t.AppendRow(table.Row{index, report.Batches, report.Indexed, report.Rejected})
	t.Render()
}
