package cmd

import (
	"github.com/newhook/necropolis/internal/aggregate"
	"github.com/newhook/necropolis/internal/tui"
	"github.com/spf13/cobra"
)

var flagViewOutputDir string

var viewCmd = &cobra.Command{
	Use:   "view [report.json]",
	Short: "Browse a taxonomy report",
	Long:  `Open a taxonomy report in a scrollable terminal viewer. Defaults to the latest report under --output-dir.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runView,
}

func init() {
	viewCmd.Flags().StringVar(&flagViewOutputDir, "output-dir", ".", "output directory the report tree was written to")
}

func runView(cmd *cobra.Command, args []string) error {
	path := aggregate.LatestReportPath(flagViewOutputDir)
	if len(args) == 1 {
		path = args[0]
	}

	report, err := aggregate.LoadReport(path)
	if err != nil {
		return err
	}
	return tui.View(GetContext(), report, path)
}
