// Package cmd implements the domain-profiler command-line interface.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonesrussell/domain-profiler/cmd/common"
	"github.com/jonesrussell/domain-profiler/cmd/crawl"
	"github.com/jonesrussell/domain-profiler/cmd/export"
	"github.com/jonesrussell/domain-profiler/cmd/migrate"
	"github.com/jonesrussell/domain-profiler/cmd/queue"
	"github.com/jonesrussell/domain-profiler/cmd/restore"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the command tree. deps is filled in before any
// subcommand runs.
func NewRootCommand() *cobra.Command {
	deps := &common.CommandDeps{Version: Version}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "domain-profiler",
		Short:         "Profile domain names from the ingestion queue",
		Long:          `Claims domain names from a Postgres work queue, analyzes each site and stores one semantic record per domain.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			if err := bindFlags(v, cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			return initDeps(v, deps)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if deps.Logger != nil {
				_ = deps.Logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is ./config.yml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		crawl.Command(deps),
		restore.Command(deps),
		queue.Command(deps),
		migrate.Command(deps),
		export.Command(deps),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				cmd.Printf("domain-profiler version %s\n", Version)
			},
		},
	)
	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// globalFlags maps viper keys to their flag and environment variable.
var globalFlags = []struct {
	key, flag, env string
}{
	{"config", "config", "CONFIG_PATH"},
	{"app.debug", "debug", "APP_DEBUG"},
	{"logging.level", "log-level", "LOG_LEVEL"},
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, f := range globalFlags {
		if err := v.BindPFlag(f.key, flags.Lookup(f.flag)); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", f.flag, err)
		}
		if err := v.BindEnv(f.key, f.env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", f.env, err)
		}
	}
	return nil
}

// initDeps loads the configuration and builds the logger. Flags win over
// their environment variables, which win over the config file.
func initDeps(v *viper.Viper, deps *common.CommandDeps) error {
	path := v.GetString("config")
	if path == "" {
		path = config.GetConfigPath("config.yml")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if v.GetBool("app.debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}
	if level := strings.TrimSpace(v.GetString("logging.level")); level != "" && !cfg.App.Debug {
		cfg.Logging.Level = level
	}
	if !cfg.App.IsProduction() {
		cfg.Logging.Development = true
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	deps.Config = cfg
	deps.Logger = log.With(logger.String("service", cfg.App.Name))
	return nil
}
