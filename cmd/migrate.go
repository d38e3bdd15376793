package cmd

import (
	"fmt"

	"github.com/newhook/necropolis/internal/db"
	"github.com/spf13/cobra"
)

var flagMigrateDB string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage ledger migrations",
	Long:  `Manage schema migrations of the SQLite ledger. Migrations are applied automatically whenever the ledger is opened.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.PersistentFlags().StringVar(&flagMigrateDB, "db", "", "SQLite ledger path (default from config)")
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ledger, err := openLedger(flagMigrateDB)
	if err != nil {
		return err
	}
	defer ledger.Close()

	versions, err := db.MigrationStatus(GetContext(), ledger.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No migrations applied")
		return nil
	}
	fmt.Fprintln(out, "Applied migrations:")
	for _, v := range versions {
		fmt.Fprintf(out, "  %s\n", v)
	}
	return nil
}
