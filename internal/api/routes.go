package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperengineering/fieldops/internal/types"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	staff := RequireRole(types.RoleManager, types.RoleOffice)

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Get("/health", h.Health)

		// Cron
		r.With(CronAuthMiddleware(h.cronSecret)).Get("/contracts/check-status", h.CheckStatus)

		// Authenticated users
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Use(UserMiddleware(h.store))

			r.Get("/contracts", h.ListContracts)
			r.Get("/contracts/{id}", h.GetContract)
			r.With(staff).Post("/contracts", h.CreateContract)
			r.With(staff).Patch("/contracts/{id}", h.UpdateContract)
			r.With(staff).Delete("/contracts/{id}", h.CancelContract)

			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
			r.With(staff).Post("/jobs", h.CreateJob)
			r.With(staff).Patch("/jobs/{id}/status", h.UpdateJobStatus)
			r.With(staff).Post("/jobs/{id}/technicians", h.AssignTechnician)
			r.Post("/jobs/{id}/technicians/respond", h.RespondToAssignment)
			r.Post("/jobs/{id}/units/{unitID}/reports", h.RequestReportUpload)
			r.Post("/jobs/{id}/units/{unitID}/reports/confirm", h.ConfirmReportUpload)

			r.Get("/jobs/{id}/checklist", h.GetChecklist)
			r.With(staff).Patch("/jobs/{id}/checklist", h.ToggleChecklistGate)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications/{id}/read", h.MarkNotificationRead)
		})
	})

	return r
}
