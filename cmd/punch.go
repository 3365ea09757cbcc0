package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

var punchCmd = &cobra.Command{
	Use:   "punch <in|out> <image>",
	Short: "Check in or out with a face image",
	Long: `Run the attendance workflow once with an image file.

A liveness challenge is drawn and printed first; the image is expected to
show the subject performing it. The image is verified against every
registered user and, when accepted, an attendance record is appended.

Examples:
  faceauth punch in ./frame.jpg
  faceauth punch out ./frame.jpg --json`,
	Args: cobra.ExactArgs(2),
	RunE: runPunch,
}

func init() {
	rootCmd.AddCommand(punchCmd)

	punchCmd.Flags().Bool("json", false, "Output the final state as JSON")
}

func runPunch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	punch, err := attendance.ParsePunchType(args[0])
	if err != nil {
		return err
	}
	image, err := readImageFile(args[1])
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	flow := workflow.NewAttendance(a.gateway, a.ledger, workflow.Options{Logger: a.logger})

	state, err := flow.SelectMode(punch)
	if err != nil {
		return err
	}
	if !jsonOutput {
		if issued, ok := state.(workflow.ChallengeIssued); ok {
			fmt.Printf("%s - challenge: %s\n", punch.Label(), issued.Challenge)
		}
	}
	if _, err := flow.AcceptChallenge(); err != nil {
		return err
	}
	state, err = flow.Capture(ctx, image)
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := outputJSON(workflow.Describe(state)); err != nil {
			return err
		}
	}

	switch st := state.(type) {
	case workflow.Success:
		if !jsonOutput {
			fmt.Printf("Recorded %s for %s at %s (confidence %.0f%%)\n",
				st.Record.Type.Label(), st.Record.UserName,
				st.Record.Timestamp.Local().Format("2006-01-02 15:04:05"),
				st.Record.Confidence*100)
			fmt.Printf("  Record ID: %s\n", st.Record.ID)
		}
		return nil
	case workflow.Failure:
		if !jsonOutput && st.LastRecordAt != nil {
			fmt.Printf("Last record: %s\n", st.LastRecordAt.Local().Format("2006-01-02 15:04:05"))
		}
		return fmt.Errorf("%s rejected (%s): %s", punch.Label(), st.Cause, st.Reason)
	default:
		return errors.New("unexpected state " + state.Name())
	}
}
