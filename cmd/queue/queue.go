// Package queue implements operator commands for the ingestion queue.
package queue

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Command returns the queue command group.
func Command(deps *common.CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the ingestion queue",
	}
	cmd.AddCommand(addCommand(deps), statsCommand(deps), locksCommand(deps), unlockCommand(deps))
	return cmd
}

func addCommand(deps *common.CommandDeps) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add [NAME...]",
		Short: "Add domain names to the queue",
		Long:  `Adds names given as arguments or read one per line from --file ("-" for stdin). Names that are already queued or already have a record are ignored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}

			names := args
			if file != "" {
				fromFile, err := readNames(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				names = append(names, fromFile...)
			}
			if len(names) == 0 {
				return errors.New("no domain names given")
			}

			ctx := cmd.Context()
			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			report, err := database.NewIngestionRepository(db).Enqueue(ctx, names...)
			if err != nil {
				return err
			}
			for _, bad := range report.Invalid {
				deps.Logger.Warn("Invalid domain name", logger.String("name", bad))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d, ignored %d, invalid %d\n",
				report.Added, report.Ignored, len(report.Invalid))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", `read names from a file, one per line ("-" for stdin)`)
	return cmd
}

// readNames reads one name per line, skipping blanks and # comments.
func readNames(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read names: %w", err)
	}
	return names, nil
}

func statsCommand(deps *common.CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue and record counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := database.NewIngestionRepository(db).Stats(ctx)
			if err != nil {
				return err
			}
			RenderStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

// RenderStats prints queue and record counts.
func RenderStats(w io.Writer, stats *database.QueueStats) {
	t := common.NewTable(w, table.Row{"Group", "State", "Count"})
	t.AppendRow(table.Row{"queue", "unlocked", stats.Unlocked})
	t.AppendRow(table.Row{"queue", "locked", stats.Locked})

	statuses := make([]string, 0, len(stats.Records))
	for status := range stats.Records {
		statuses = append(statuses, status.String())
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		t.AppendRow(table.Row{"records", s, stats.Records[domain.CrawlStatus(s)]})
	}
	if stats.OldestLock != nil {
		t.AppendFooter(table.Row{"", "oldest lock", stats.OldestLock.Format(time.RFC3339)})
	}
	t.Render()
}

func locksCommand(deps *common.CommandDeps) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List locked entries",
		Long:  `Lists entries a worker claimed but never finalized. Old locks usually belong to a crashed worker; clear them with "queue unlock".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := database.NewIngestionRepository(db).ListLocked(ctx, olderThan)
			if err != nil {
				return err
			}
			RenderLocks(cmd.OutOrStdout(), entries, time.Now())
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "only list locks older than this")
	return cmd
}

// RenderLocks prints locked entries with their lock age as of now.
func RenderLocks(w io.Writer, entries []domain.IngestionEntry, now time.Time) {
	t := common.NewTable(w, table.Row{"Domain", "Discovered", "Locked at", "Locked for"})
	for i := range entries {
		e := &entries[i]
		t.AppendRow(table.Row{
			e.DomainName,
			e.DiscoveredAt.Format(time.RFC3339),
			e.ClaimToken().Format(time.RFC3339),
			e.LockedFor(now).Truncate(time.Second).String(),
		})
	}
	t.AppendFooter(table.Row{"", "", "Total", len(entries)})
	t.Render()
}

func unlockCommand(deps *common.CommandDeps) *cobra.Command {
	var (
		domainName string
		olderThan  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Release stuck locks",
		Long:  `Clears the lock of one domain or of every entry locked longer than --older-than, so another worker can claim it. Only run this when the owning worker is known to be gone.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			if domainName == "" && olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}

			ctx := cmd.Context()
			db, err := deps.OpenDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := database.NewIngestionRepository(db)

			if domainName != "" {
				name, normErr := domain.NormalizeName(domainName)
				if normErr != nil {
					return normErr
				}
				if err := repo.Unlock(ctx, name); err != nil {
					return err
				}
				deps.Logger.Info("Unlocked entry", logger.String("domain", name))
				fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s\n", name)
				return nil
			}

			n, err := repo.UnlockOlderThan(ctx, olderThan)
			if err != nil {
				return err
			}
			deps.Logger.Info("Unlocked entries", logger.Int64("count", n), logger.Duration("older_than", olderThan))
			fmt.Fprintf(cmd.OutOrStdout(), "unlocked %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&domainName, "domain", "", "unlock a single domain")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "unlock every entry locked longer than this")
	cmd.MarkFlagsMutuallyExclusive("domain", "older-than")
	cmd.MarkFlagsOneRequired("domain", "older-than")
	return cmd
}
