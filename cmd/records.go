package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect the attendance ledger",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance records, newest first",
	Long: `List attendance records, newest first.

Examples:
  faceauth records list
  faceauth records list --user 5f0c... --limit 20
  faceauth records list --json`,
	Args: cobra.NoArgs,
	RunE: runRecordsList,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)

	recordsListCmd.Flags().String("user", "", "Only records of this user id")
	recordsListCmd.Flags().Int("limit", constants.DefaultRecordLimit, "Maximum number of records")
	recordsListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runRecordsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	limit := mustGetInt(cmd, "limit")
	if limit < 1 || limit > constants.MaxRecordLimit {
		return fmt.Errorf("--limit must be between 1 and %d", constants.MaxRecordLimit)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.ledger.ListRecords(ctx, database.RecordFilter{
		UserID: mustGetString(cmd, "user"),
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No records found")
		return nil
	}
	fmt.Printf("%-19s  %-9s  %-28s  %-10s  %s\n", "TIME", "TYPE", "NAME", "CONFIDENCE", "ID")
	for _, r := range records {
		fmt.Printf("%-19s  %-9s  %-28s  %9.0f%%  %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.Type.Label(), r.UserName, r.Confidence*100, r.ID)
	}
	return nil
}
