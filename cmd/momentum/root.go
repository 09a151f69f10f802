package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"actcollective.org/momentum/common/id"
	"actcollective.org/momentum/common/logger"
	"actcollective.org/momentum/core/config"
	"actcollective.org/momentum/core/db"
	"actcollective.org/momentum/internal/store"
)

var (
	// Global flags
	jsonOutput bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "momentum",
	Short: "Development flow metrics from your issue tracker",
	Long: `momentum turns work-item lifecycle events into flow metrics.

It fetches issue history from your tracker, computes cycle time, lead
time, throughput, WIP and flow efficiency over a trailing window, flags
anomalies, and publishes a dated snapshot for the dashboard.

Commands:
  run        Execute a metrics run and publish a snapshot
  snapshots  List published snapshots`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of plain text")
}

// setup loads config, wires logging and the ID generator. Shared by every
// subcommand.
func setup() (config.Config, error) {
	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		return config.Config{}, err
	}

	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func openSnapshotStore(ctx context.Context, cfg config.Config) (store.SnapshotStore, func(), error) {
	if cfg.UsePostgres() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgres(database.Pool()), database.Close, nil
	}

	snapshots, closeFn, err := store.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("sqlite snapshot store opened", "path", cfg.SQLitePath)
	return snapshots, func() { _ = closeFn() }, nil
}
