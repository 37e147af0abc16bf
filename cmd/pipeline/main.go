package main

import (
	"fmt"
	"os"

	"go-election-merge/internal/config"
	"go-election-merge/internal/logging"
	"go-election-merge/internal/pipeline"
	"go-election-merge/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	ConfigPath string
	Store      string // overrides database.driver
	LogLevel   string
	Format     string // "text" | "json"
}

// app is what a subcommand needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  pipeline.Store
	close  func() error
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Merge two electoral rounds into one wide table per district",
		Long: `Merges two rounds of per-district electoral results on the district key,
computing turnout and relative vote share per category and round. Three
equivalent topologies (separate, union, staged) can be run and compared.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "persistence backend (sqlite|memory|none), overrides config")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCompareCommand(opts))
	cmd.AddCommand(newExplainCommand(opts))

	return cmd
}

// setup loads config, builds the logger and opens the configured store.
func setup(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Store != "" {
		cfg.Database.Driver = opts.Store
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, close: func() error { return nil }}
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.store = pipeline.WithRetry(db, cfg.RetryPolicy(), store.IsRetryable, logger)
		a.close = db.Close
	case "memory":
		a.store = store.NewMemory()
	}
	return a, nil
}

func (a *app) shutdown() {
	if err := a.close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
