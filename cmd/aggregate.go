package cmd

import (
	"context"
	"fmt"

	"github.com/newhook/necropolis/internal/aggregate"
	"github.com/newhook/necropolis/internal/db"
	"github.com/newhook/necropolis/internal/logging"
	"github.com/newhook/necropolis/internal/tui"
	"github.com/newhook/necropolis/internal/watch"
	"github.com/spf13/cobra"
)

const summaryWidth = 100

var (
	flagAggregateArtifactsDir string
	flagAggregateOutputDir    string
	flagAggregateDB           string
	flagAggregateWatch        bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate outcome records into a taxonomy report",
	Long: `Scan the artifacts directory for outcome records and necromancer-*.zip bundles,
and write a taxonomy report (JSON and Markdown) under the output directory.
Malformed records are skipped with a warning.`,
	Args: cobra.NoArgs,
	RunE: runAggregate,
}

func init() {
	aggregateCmd.Flags().StringVar(&flagAggregateArtifactsDir, "artifacts-dir", "artifacts", "directory to scan for outcome records")
	aggregateCmd.Flags().StringVar(&flagAggregateOutputDir, "output-dir", ".", "directory to write the necropolis report tree into")
	aggregateCmd.Flags().StringVar(&flagAggregateDB, "db", "", "SQLite ledger path (default from config; empty disables)")
	aggregateCmd.Flags().BoolVarP(&flagAggregateWatch, "watch", "w", false, "re-aggregate whenever the artifacts change")
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	conf := getConfig().Aggregator

	dbPath := conf.Database
	if flagAggregateDB != "" {
		dbPath = flagAggregateDB
	}

	var ledger aggregate.Ledger
	if dbPath != "" {
		ledgerDB, err := db.OpenPath(ctx, dbPath)
		if err != nil {
			return err
		}
		defer ledgerDB.Close()
		ledger = ledgerDB
	}

	agg := aggregate.New(cmd.OutOrStdout(), aggregate.Options{
		TopFingerprints:      conf.GetTopFingerprints(),
		MarkdownFingerprints: conf.GetMarkdownFingerprints(),
	}, ledger)

	if err := aggregateOnce(ctx, cmd, agg); err != nil {
		return err
	}
	if !flagAggregateWatch {
		return nil
	}

	w, err := watch.New(watch.Config{
		Dir:      flagAggregateArtifactsDir,
		Debounce: conf.GetWatchDebounce(),
		OnChange: func(ctx context.Context) {
			if err := aggregateOnce(ctx, cmd, agg); err != nil {
				printWarning(cmd, "aggregation failed: %v", err)
				logging.Error("aggregation failed", "error", err)
			}
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (Ctrl-C to stop)\n", flagAggregateArtifactsDir)
	return w.Run(ctx)
}

func aggregateOnce(ctx context.Context, cmd *cobra.Command, agg *aggregate.Aggregator) error {
	res, err := agg.Run(ctx, flagAggregateArtifactsDir, flagAggregateOutputDir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, tui.Summary(res.Report, summaryWidth))
	fmt.Fprintf(out, "Report: %s\n", res.ReportPath)
	return nil
}
