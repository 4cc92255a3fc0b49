package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/firmforge/catalog-sync/internal/acquire"
	"github.com/firmforge/catalog-sync/internal/catalog"
	"github.com/firmforge/catalog-sync/internal/config"
	"github.com/firmforge/catalog-sync/internal/git"
	"github.com/firmforge/catalog-sync/internal/logger"
	"github.com/firmforge/catalog-sync/internal/resources"
	"github.com/firmforge/catalog-sync/internal/scan"
	"github.com/firmforge/catalog-sync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the device driver catalog",
	Long: `Synchronize the device driver catalog from the board-definition source tree.

The run acquires a snapshot from the configured mirrors, extracts device and
chip records, and writes the validated catalog file. The configuration file
(--config) specifies the mirror list, resource budgets, and output location.

See examples/ directory for sample configurations.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	syncCmd.Flags().String("output", "", "Catalog output path (overrides the configuration file)")

	if err := viper.BindPFlag("config", syncCmd.Flags().Lookup("config")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind config flag: %v\n", err)
		os.Exit(1)
	}
	if err := viper.BindPFlag("output", syncCmd.Flags().Lookup("output")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind output flag: %v\n", err)
		os.Exit(1)
	}

	if err := syncCmd.MarkFlagRequired("config"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mark config flag as required: %v\n", err)
		os.Exit(1)
	}
}

func runSync(_ *cobra.Command, _ []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if output := viper.GetString("output"); output != "" {
		cfg.Output = output
	}

	level := cfg.Log.Level
	if viper.GetBool("debug") {
		level = "debug"
	}
	log, closeLog, err := logger.Setup(level, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()

	// The whole run is abortable by signal; cleanup still happens on
	// every exit path
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting catalog synchronization",
		"config", configPath,
		"mirrors", len(cfg.Mirrors),
		"output", cfg.Output)

	acquirer := acquire.New(git.NewDefaultGitClient(), acquire.Options{
		RetryBudget:    cfg.Acquire.RetryBudget,
		RetryBackoff:   cfg.RetryBackoff(),
		AttemptTimeout: cfg.AttemptTimeout(),
	}, log)

	monitor := resources.NewSystemMonitor(
		cfg.Resources.MemoryLimitMB*1024*1024,
		cfg.Resources.MinDiskMB*1024*1024,
		outputDir(cfg.Output),
		log,
	)

	runner := sync.NewRunner(cfg, acquirer, monitor, log)
	result, err := runner.Run(ctx)
	if err != nil {
		logFatal(log, err)
		return err
	}

	if result.Placeholders {
		log.Warn("Catalog contains placeholder records only")
	}
	return nil
}

// outputDir names an existing directory on the filesystem that will hold
// the catalog, for disk-capacity probing.
func outputDir(output string) string {
	dir := filepath.Dir(output)
	if dir == "" {
		return "."
	}
	return dir
}

// logFatal classifies a run failure for the diagnostics stream.
func logFatal(log *slog.Logger, err error) {
	var acquisitionErr *acquire.AcquisitionError
	var noCandidatesErr *scan.NoCandidatesError
	var diskErr *catalog.DiskPressureError

	switch {
	case errors.As(err, &acquisitionErr):
		log.Error("All mirrors exhausted", "error", err)
	case errors.As(err, &noCandidatesErr):
		log.Error("Source tree is structurally unusable", "error", err)
	case errors.As(err, &diskErr):
		log.Error("Durable storage critically low, aborting", "error", err)
	default:
		log.Error("Synchronization run failed", "error", err)
	}
}
