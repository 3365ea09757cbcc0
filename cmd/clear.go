package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all users and attendance records",
	Long: `Remove every registered user and every attendance record.

Both collections are cleared in one step. This cannot be undone; use
"faceauth users list --json" and "faceauth records list --json" first if
the data should be kept.

Example:
  faceauth clear --yes`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().Bool("yes", false, "Skip confirmation prompt")
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.ledger.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	if !mustGetBool(cmd, "yes") {
		prompt := fmt.Sprintf("Delete %d users and all attendance records from the %s ledger? [y/N]: ", len(users), a.cfg.Database.Backend)
		if !confirmAction(prompt) {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := a.ledger.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear ledger: %w", err)
	}
	fmt.Println("All users and records removed")
	return nil
}

func confirmAction(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
