package cmd

import (
	"errors"
	"fmt"

	"github.com/muesli/reflow/truncate"
	"github.com/newhook/necropolis/internal/db"
	"github.com/spf13/cobra"
)

var (
	flagHistoryDB           string
	flagHistoryLimit        int
	flagHistoryFingerprints bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded aggregation runs",
	Long: `List the aggregation runs stored in the SQLite ledger, newest first. With
--fingerprints, show the failure fingerprints seen most often across all runs.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&flagHistoryDB, "db", "", "SQLite ledger path (default from config)")
	historyCmd.Flags().IntVarP(&flagHistoryLimit, "limit", "n", 10, "number of rows to show")
	historyCmd.Flags().BoolVar(&flagHistoryFingerprints, "fingerprints", false, "show cumulative top fingerprints")
}

func openLedger(flagPath string) (*db.DB, error) {
	path := getConfig().Aggregator.Database
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		return nil, errors.New("no ledger configured: set [aggregator] database or pass --db")
	}
	return db.OpenPath(GetContext(), path)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger(flagHistoryDB)
	if err != nil {
		return err
	}
	defer ledger.Close()

	out := cmd.OutOrStdout()
	ctx := GetContext()

	if flagHistoryFingerprints {
		counts, err := ledger.TopFingerprints(ctx, flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Fprintln(out, "No failures recorded")
			return nil
		}
		fmt.Fprintf(out, "%-6s %-5s %-28s %s\n", "COUNT", "RUNS", "ERROR TYPE", "FINGERPRINT")
		for _, fc := range counts {
			fmt.Fprintf(out, "%-6d %-5d %-28s %s\n", fc.Count, fc.Runs, fc.ErrorType, truncate.StringWithTail(fc.Fingerprint, 80, "..."))
		}
		return nil
	}

	runs, err := ledger.ListRuns(ctx, flagHistoryLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No aggregation runs recorded")
		return nil
	}

	fmt.Fprintf(out, "%-36s %-20s %-8s %-8s %s\n", "RUN", "GENERATED", "OUTCOMES", "FAILURES", "SUCCESS")
	for _, r := range runs {
		fmt.Fprintf(out, "%-36s %-20s %-8d %-8d %.2f%%\n", r.ID, r.GeneratedAt.Format("2006-01-02 15:04"), r.TotalOutcomes, r.TotalFailures, r.OverallSuccessRate)
	}
	return nil
}
