package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/olea-platform/internal/middleware"
	"github.com/mmeshcher/olea-platform/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware платформы.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	managers := custommiddleware.RequireRole(model.RoleAdmin, model.RoleSupervisor)
	admins := custommiddleware.RequireRole(model.RoleAdmin)

	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/session", h.CurrentSession)

			r.Route("/work-orders", func(r chi.Router) {
				r.Get("/", h.ListWorkOrders)
				r.With(managers).Post("/", h.CreateWorkOrder)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetWorkOrder)
					r.With(managers).Patch("/", h.UpdateWorkOrder)
					r.With(managers).Post("/assign", h.AssignWorkOrder)
					r.Post("/status", h.UpdateWorkOrderStatus)
					r.With(managers).Post("/funds", h.AddSupplementalFunds)
					r.Get("/financials", h.GetWorkOrderFinancials)
				})
			})

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", h.ListExpenses)
				r.Post("/", h.SaveExpense)
				r.With(admins).Post("/sync", h.SyncExpenses)
				r.Get("/{id}", h.GetExpense)
				r.Post("/{id}/status", h.UpdateExpenseStatus)
			})

			r.Get("/players/{id}", h.GetPlayer)
			r.With(admins).Post("/players/{id}/xp", h.AddXP)
			r.Get("/leaderboard", h.Leaderboard)

			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.ListEmployees)
				r.With(custommiddleware.RequireRole(model.RoleAdmin, model.RoleHR)).Post("/", h.SaveEmployee)
				r.Get("/{id}", h.GetEmployee)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
