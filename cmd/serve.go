package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/database/postgres"
	"github.com/kozaktomas/faceauth-station/internal/web"
	"github.com/kozaktomas/faceauth-station/internal/web/handlers"
	"github.com/kozaktomas/faceauth-station/internal/web/middleware"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk API server",
	Long: `Start the HTTP API that drives the attendance and registration workflows.

Kiosk clients follow the workflow state through the /api/v1/kiosk/events
stream. Admin routes (users, records, data reset) require a login when
ADMIN_PASSWORD_HASH is set.

Examples:
  faceauth serve
  faceauth serve --port 3000
  faceauth serve --memory --provider openai`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default from WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default from WEB_HOST or 0.0.0.0)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	events := handlers.NewEventBroadcaster()
	opts := workflow.Options{
		SuccessDelay: a.cfg.Kiosk.SuccessReturnDelay,
		Logger:       a.logger,
		OnChange:     events.Publish,
	}
	attendanceFlow := workflow.NewAttendance(a.gateway, a.ledger, opts)
	registrationFlow := workflow.NewRegistration(a.gateway, a.ledger, opts)
	workflow.Link(attendanceFlow, registrationFlow)

	var sessions middleware.SessionRepository
	if a.cfg.Database.Backend == config.BackendPostgres {
		if pool := postgres.GetGlobalPool(); pool != nil {
			sessions = postgres.NewSessionRepository(pool)
		}
	}

	server := web.NewServer(a.cfg, web.Dependencies{
		Ledger:       a.ledger,
		Attendance:   attendanceFlow,
		Registration: registrationFlow,
		Events:       events,
		Usage:        a.gateway,
		Sessions:     sessions,
		Logger:       a.logger,
	})

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		fmt.Println("\nShutting down...")
		attendanceFlow.Cancel()
		registrationFlow.Reset()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("shutdown failed", zap.Error(err))
		}
		close(done)
	}()

	fmt.Printf("Starting faceauth kiosk on http://%s\n", server.Addr())
	fmt.Printf("  Provider: %s (%s)\n", a.cfg.AI.Provider, providerStatus(a))
	fmt.Printf("  Ledger:   %s\n", a.cfg.Database.Backend)
	if a.cfg.Web.AdminPasswordHash == "" {
		fmt.Println("  Admin:    open (ADMIN_PASSWORD_HASH not set)")
	}

	if err := server.Start(); err != nil {
		return err
	}
	<-done
	return nil
}

func providerStatus(a *app) string {
	if name := a.gateway.ProviderName(); name != "" {
		return name
	}
	return "no API key"
}
