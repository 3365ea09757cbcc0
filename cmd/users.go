package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/database"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage registered users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	Long: `List registered users in registration order.

Examples:
  faceauth users list
  faceauth users list --query novak
  faceauth users list --json`,
	Args: cobra.NoArgs,
	RunE: runUsersList,
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a registered user",
	Long: `Delete a registered user by internal id.

Attendance records of the user are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runUsersDelete,
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersDeleteCmd)

	usersListCmd.Flags().String("query", "", "Filter by name or employee id (accents and case ignored)")
	usersListCmd.Flags().Bool("json", false, "Output as JSON")
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := mustGetString(cmd, "query")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	users, err := a.ledger.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	filtered := make([]attendance.User, 0, len(users))
	for _, u := range users {
		if attendance.MatchesQuery(u, query) {
			u.FaceImage = nil
			filtered = append(filtered, u)
		}
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(filtered)
	}

	if len(filtered) == 0 {
		fmt.Println("No users found")
		return nil
	}
	fmt.Printf("%-36s  %-12s  %-28s  %-16s  %s\n", "ID", "EMPLOYEE", "NAME", "DEPARTMENT", "REGISTERED")
	for _, u := range filtered {
		fmt.Printf("%-36s  %-12s  %-28s  %-16s  %s\n",
			u.ID, u.EmployeeID, u.Name, u.Department, u.RegisteredAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d user(s)\n", len(filtered))
	return nil
}

func runUsersDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ledger.DeleteUser(ctx, args[0]); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %s not found", args[0])
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	fmt.Printf("Deleted user %s\n", args[0])
	return nil
}
