package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/newhook/necropolis/internal/config"
	"github.com/newhook/necropolis/internal/logging"
	nsignal "github.com/newhook/necropolis/internal/signal"
	"github.com/spf13/cobra"
)

var (
	// rootCtx holds the signal-cancellable context for the application
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// cfg is loaded before every command runs
	cfg *config.Config

	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "necropolis",
	Short: "Classify CI failure logs and aggregate them into a taxonomy report",
	Long: `Necropolis classifies CI step logs into error types and fingerprints, writes one
outcome record per step, and aggregates many records into a taxonomy report.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx, rootCancel = nsignal.WithSignalCancel(context.Background())

		var err error
		if flagConfig != "" {
			cfg, err = config.Load(flagConfig)
		} else {
			cfg, err = config.Find(".")
		}
		if err != nil {
			return err
		}

		logDir := cfg.Logging.Dir
		if logDir == "" {
			logDir, _ = os.Getwd()
		}
		logging.Init(logDir, logging.ParseLevel(cfg.Logging.GetLevel()))
		logging.Debug("command started", "command", cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
		_ = logging.Close()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns the root context that is cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

// getConfig returns the loaded configuration, or defaults when called
// outside a command run.
func getConfig() *config.Config {
	if cfg == nil {
		return &config.Config{}
	}
	return cfg
}

func printWarning(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), "warning: "+format+"\n", args...)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./"+config.FileName+")")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(versionCmd)
}
