// Package crawl implements the crawl command that runs the worker pool.
package crawl

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/classify"
	"github.com/jonesrussell/domain-profiler/internal/config"
	internalcrawl "github.com/jonesrussell/domain-profiler/internal/crawl"
	"github.com/jonesrussell/domain-profiler/internal/database"
	"github.com/jonesrussell/domain-profiler/internal/logger"
	"github.com/jonesrussell/domain-profiler/internal/metrics"
	"github.com/jonesrussell/domain-profiler/internal/reaper"
	"github.com/jonesrussell/domain-profiler/internal/server"
)

type options struct {
	workers       int
	maxClaims     int
	exitWhenEmpty bool
}

// Command returns the crawl command.
func Command(deps *common.CommandDeps) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Claim and profile domains from the ingestion queue",
		Long: `Starts the worker pool. Each worker claims one domain at a time, fetches and
classifies it and writes a terminal record. Outside production a run stops after
worker.max_claims claims; in production it runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := deps.Validate(); err != nil {
				return err
			}
			applyFlags(cmd, deps.Config, opts)
			ctx, cancel := common.SignalContext(cmd.Context())
			defer cancel()
			return run(ctx, deps)
		},
	}

	cmd.Flags().IntVar(&opts.workers, "workers", 0, "number of workers (overrides worker.count)")
	cmd.Flags().IntVar(&opts.maxClaims, "max-claims", 0, "stop after this many claims, 0 for unbounded")
	cmd.Flags().BoolVar(&opts.exitWhenEmpty, "exit-when-empty", false, "stop when the queue is empty")
	return cmd
}

func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) {
	if cmd.Flags().Changed("workers") {
		cfg.Worker.Count = opts.workers
	}
	if cmd.Flags().Changed("max-claims") {
		cfg.Worker.MaxClaims = opts.maxClaims
	}
	if cmd.Flags().Changed("exit-when-empty") {
		cfg.Worker.ExitWhenEmpty = opts.exitWhenEmpty
	}
}

func run(ctx context.Context, deps *common.CommandDeps) error {
	cfg, log := deps.Config, deps.Logger

	db, err := deps.OpenDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	classifier, err := classify.New(cfg.Classifier, log)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	var browser analysis.Renderer
	if cfg.Browser.Enabled {
		b := analysis.NewBrowserRenderer(cfg.Browser, log)
		defer func() {
			if closeErr := b.Close(); closeErr != nil {
				log.Warn("Failed to close browser", logger.Error(closeErr))
			}
		}()
		browser = b
	}
	analyzer := analysis.NewAnalyzer(analysis.NewHTTPRenderer(cfg.Fetch), browser, cfg.Fetch, log)

	queue := database.NewIngestionRepository(db)
	m := metrics.New()

	opts := []internalcrawl.Option{internalcrawl.WithMetrics(m)}
	if len(cfg.Worker.Blocklist) > 0 {
		blocklist := internalcrawl.NewBlocklist(cfg.Worker.Blocklist)
		log.Info("Blocklist loaded", logger.Int("entries", blocklist.Len()))
		opts = append(opts, internalcrawl.WithPolicy(blocklist))
	}
	pool := internalcrawl.NewWorkerPool(queue, analyzer, classifier, log, internalcrawl.ConfigFrom(cfg), opts...)

	// Background services stop when the pool is done.
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()
	var wg sync.WaitGroup

	if cfg.Worker.LockLease > 0 {
		r, reaperErr := reaper.New(queue, cfg.Worker.LockLease, cfg.Worker.ReaperSchedule, m, log)
		if reaperErr != nil {
			return reaperErr
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Start(bgCtx)
		}()
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, cfg.App.Debug, server.Deps{
			DB:      db,
			Queue:   queue,
			Records: database.NewRecordRepository(db),
			Metrics: m.Handler(),
			Version: deps.Version,
		}, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if srvErr := srv.Run(bgCtx); srvErr != nil {
				log.Error("HTTP server failed", logger.Error(srvErr))
			}
		}()
	}

	log.Info("Starting crawl",
		logger.String("environment", cfg.App.Environment),
		logger.String("classifier", cfg.Classifier.Provider),
		logger.Bool("browser", cfg.Browser.Enabled),
		logger.Duration("lock_lease", cfg.Worker.LockLease),
	)
	err = pool.Start(ctx)

	stopBackground()
	wg.Wait()
	return err
}
