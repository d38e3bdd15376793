package cmd

import (
	"fmt"
	"strings"

	"github.com/newhook/necropolis/internal/errparse"
	"github.com/newhook/necropolis/internal/logging"
	"github.com/newhook/necropolis/internal/outcome"
	"github.com/spf13/cobra"
)

var (
	flagParseLogFile        string
	flagParseName           string
	flagParseCategory       string
	flagParseVariant        string
	flagParseExitCode       int
	flagParseDuration       float64
	flagParseOutcome        string
	flagParseOutputDir      string
	flagParseCollectionType string
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Classify a CI step log and write its outcome record",
	Long: `Classify the log of one CI step into an error type and fingerprint, then write
outcome.json and outcome.ndjson into the output directory. A missing log file is
reported and classified as placeholder text; only write failures are errors.`,
	Args: cobra.NoArgs,
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVar(&flagParseLogFile, "log-file", "", "path to the captured step log")
	parseCmd.Flags().StringVar(&flagParseName, "name", "unknown", "step name")
	parseCmd.Flags().StringVar(&flagParseCategory, "category", "unknown", "step category")
	parseCmd.Flags().StringVar(&flagParseVariant, "variant", "default", "matrix variant")
	parseCmd.Flags().IntVar(&flagParseExitCode, "exit-code", 0, "step exit code")
	parseCmd.Flags().Float64Var(&flagParseDuration, "duration", 0, "step duration in seconds")
	parseCmd.Flags().StringVar(&flagParseOutcome, "outcome", outcome.Failure, "step outcome (SUCCESS or FAILURE)")
	parseCmd.Flags().StringVar(&flagParseOutputDir, "output-dir", ".", "directory for outcome.json and outcome.ndjson")
	parseCmd.Flags().StringVar(&flagParseCollectionType, "collection-type", "", "pr_time or verification (default from config)")
}

func runParse(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	logText, ok := errparse.ReadLog(flagParseLogFile)
	if !ok {
		printWarning(cmd, "log file not found: %s", flagParseLogFile)
		logging.Warn("log file not found", "path", flagParseLogFile)
	}

	result := strings.ToUpper(flagParseOutcome)
	if result != outcome.Success && result != outcome.Failure {
		printWarning(cmd, "unknown outcome %q, treating as %s", flagParseOutcome, outcome.Failure)
		result = outcome.Failure
	}

	collection := getConfig().Parser.GetCollectionType()
	if flagParseCollectionType != "" {
		collection = flagParseCollectionType
	}

	rec := errparse.NewBuilder().Build(logText, errparse.StepInfo{
		Name:            flagParseName,
		Category:        flagParseCategory,
		Variant:         flagParseVariant,
		ExitCode:        flagParseExitCode,
		DurationSeconds: flagParseDuration,
		Outcome:         result,
		CollectionType:  collection,
	})

	if err := outcome.WriteFiles(flagParseOutputDir, rec); err != nil {
		return err
	}

	logging.Info("outcome written", "name", rec.Name, "error_type", rec.ErrorType, "dir", flagParseOutputDir)
	fmt.Fprintf(out, "%s: %s (%s)\n", rec.Name, rec.ErrorType, rec.Outcome)
	fmt.Fprintf(out, "fingerprint: %s\n", rec.Fingerprint)
	for _, check := range rec.FailedChecks {
		fmt.Fprintf(out, "  - %s\n", check)
	}
	return nil
}
