package main

import (
	"fmt"
	"os"

	"github.com/cuemby/hctracker/pkg/config"
	"github.com/cuemby/hctracker/pkg/log"
	"github.com/cuemby/hctracker/pkg/metrics"
	"github.com/cuemby/hctracker/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is loaded once per invocation by the root command's pre-run hook
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hctracker",
	Short: "hctracker - health-check case tracker",
	Long: `hctracker reconciles periodic network health-check reports against a
persistent per-network case tracker.

Each run opens cases for new failures and warnings, closes cases that
no longer appear, applies the network's ignore list, and recomputes
node coverage for the report month.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("data-dir") {
			loaded.DataDir, _ = cmd.Flags().GetString("data-dir")
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			loaded.Logging.JSON, _ = cmd.Flags().GetBool("log-json")
		}

		log.Init(log.Config{
			Level:      log.ParseLevel(loaded.Logging.Level),
			JSONOutput: loaded.Logging.JSON,
		})
		cfg = loaded
		return nil
	},
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hctracker version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Config file (default $HCTRACKER_CONFIG)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory for tracker state")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("hctracker version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
		return nil
	},
}

func openStore() (*storage.BoltStore, error) {
	store, err := storage.NewBoltStore(cfg.DataDir, storage.Options{
		SnapshotRetention: cfg.Storage.SnapshotRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker store: %v", err)
	}
	return store, nil
}

// writeMetrics writes the metrics textfile when one is configured
func writeMetrics(store storage.Store) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	logger := log.WithComponent("metrics")
	if failed, err := metrics.NewCollector(store).Collect(); err != nil {
		logger.Warn().Err(err).Msg("Failed to collect tracker gauges")
	} else if len(failed) > 0 {
		logger.Warn().Strs("networks", failed).Msg("Skipped unreadable networks")
	}
	if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		logger.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics textfile")
	}
}
