package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/faceauth-station/internal/constants"
	"github.com/kozaktomas/faceauth-station/internal/web/handlers"
	"github.com/kozaktomas/faceauth-station/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	kioskHandler := handlers.NewKioskHandler(s.deps.Attendance, s.deps.Registration, s.logger)
	eventsHandler := handlers.NewEventsHandler(s.deps.Events, s.deps.Attendance, s.deps.Registration)
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Usage)
	authHandler := handlers.NewAuthHandler(s.config, s.sessionManager, s.logger)
	adminHandler := handlers.NewAdminHandler(s.deps.Ledger, s.logger)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.HealthCheck)

		// Long-running: event stream and the endpoints that wait for the AI.
		r.Get("/kiosk/events", eventsHandler.Stream)
		r.Post("/kiosk/attendance/capture", kioskHandler.CaptureAttendance)
		r.Post("/kiosk/registration/confirm", kioskHandler.ConfirmRegistration)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(constants.RequestTimeout))

			r.Get("/kiosk/config", configHandler.Get)

			// Attendance
			r.Get("/kiosk/attendance", kioskHandler.GetAttendance)
			r.Post("/kiosk/attendance/start", kioskHandler.StartAttendance)
			r.Post("/kiosk/attendance/mode", kioskHandler.SelectMode)
			r.Post("/kiosk/attendance/accept", kioskHandler.AcceptChallenge)
			r.Post("/kiosk/attendance/retry", kioskHandler.RetryAttendance)
			r.Post("/kiosk/attendance/dismiss", kioskHandler.DismissAttendance)
			r.Post("/kiosk/attendance/cancel", kioskHandler.CancelAttendance)

			// Registration
			r.Get("/kiosk/registration", kioskHandler.GetRegistration)
			r.Post("/kiosk/registration/form", kioskHandler.SubmitForm)
			r.Post("/kiosk/registration/capture", kioskHandler.CaptureRegistration)
			r.Post("/kiosk/registration/retake", kioskHandler.Retake)
			r.Post("/kiosk/registration/back", kioskHandler.BackToForm)
			r.Post("/kiosk/registration/reset", kioskHandler.ResetRegistration)

			// Auth
			r.Post("/auth/login", authHandler.Login)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/status", authHandler.Status)

			// Admin
			r.Group(func(r chi.Router) {
				if s.config.Web.AdminPasswordHash != "" {
					r.Use(middleware.RequireAuth(s.sessionManager))
				} else {
					s.logger.Warn("ADMIN_PASSWORD_HASH is not set, admin routes are open")
				}

				r.Get("/users", adminHandler.ListUsers)
				r.Get("/users/{id}/photo", adminHandler.UserPhoto)
				r.Delete("/users/{id}", adminHandler.DeleteUser)
				r.Get("/records", adminHandler.ListRecords)
				r.Get("/export", adminHandler.Export)
				r.Delete("/data", adminHandler.ClearData)
			})
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})
}
