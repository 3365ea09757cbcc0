package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

var registerCmd = &cobra.Command{
	Use:   "register <image>",
	Short: "Register a user from a face image",
	Long: `Register a user with a reference face image.

The image is checked by the AI provider (exactly one clear, frontal face)
and stored resized. Registering an existing employee id replaces that
user's details and image while keeping its attendance history.

Example:
  faceauth register ./jane.jpg --name "Jane Doe" --employee-id E-042 --department Sales`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "Full name (required)")
	registerCmd.Flags().String("employee-id", "", "Employee id (required)")
	registerCmd.Flags().String("department", "", "Department")
	registerCmd.Flags().Bool("json", false, "Output the stored user as JSON")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	image, err := readImageFile(args[0])
	if err != nil {
		return err
	}
	form := workflow.Form{
		Name:       mustGetString(cmd, "name"),
		EmployeeID: mustGetString(cmd, "employee-id"),
		Department: mustGetString(cmd, "department"),
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := registerUser(ctx, workflow.NewRegistration(a.gateway, a.ledger, workflow.Options{Logger: a.logger}), form, image)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		user.FaceImage = nil
		return outputJSON(user)
	}
	fmt.Printf("Registered %s (%s)\n", user.Name, user.EmployeeID)
	fmt.Printf("  User ID: %s\n", user.ID)
	return nil
}

// registerUser drives one registration workflow from form to completion.
func registerUser(ctx context.Context, flow *workflow.Registration, form workflow.Form, image []byte) (attendance.User, error) {
	if _, err := flow.SubmitForm(form.Name, form.EmployeeID, form.Department); err != nil {
		return attendance.User{}, err
	}
	if _, err := flow.Capture(image); err != nil {
		return attendance.User{}, err
	}
	state, err := flow.Confirm(ctx)
	if err != nil {
		return attendance.User{}, err
	}

	switch st := state.(type) {
	case workflow.RegistrationComplete:
		return st.User, nil
	case workflow.RegistrationPreview:
		return attendance.User{}, fmt.Errorf("registration of %s failed: %s", form.EmployeeID, st.Rejection)
	default:
		return attendance.User{}, fmt.Errorf("registration of %s ended in state %s", form.EmployeeID, state.Name())
	}
}
