package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	providerOverride string
	memoryLedger     bool
)

var rootCmd = &cobra.Command{
	Use:   "faceauth",
	Short: "Face-verified attendance kiosk",
	Long: `Faceauth runs an attendance kiosk that identifies employees by their face.

A captured frame is compared against every registered reference image by a
hosted vision model (Gemini or OpenAI), together with a random liveness
challenge. Accepted check-ins and check-outs are appended to a ledger in
PostgreSQL, MariaDB or a local JSON file.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&providerOverride, "provider", "", "AI provider to use (gemini, openai); overrides AI_PROVIDER")
	rootCmd.PersistentFlags().BoolVar(&memoryLedger, "memory", false, "Use the in-memory ledger (LEDGER_FILE if set) regardless of DATABASE_BACKEND")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
