package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/faceauth-station/internal/attendance"
)

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Print a random liveness challenge",
	Long: `Print a liveness challenge drawn the same way the kiosk draws them.

With --all the whole action vocabulary is listed instead.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if mustGetBool(cmd, "all") {
			for _, a := range attendance.LivenessActions() {
				fmt.Println(a)
			}
			return
		}
		fmt.Println(attendance.ChooseChallenge(nil))
	},
}

func init() {
	rootCmd.AddCommand(challengeCmd)

	challengeCmd.Flags().Bool("all", false, "List all liveness actions")
}
