package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/atinyakov/crmkeeper/internal/middleware"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Auth      *AuthHandler
	Customers *CustomerHandler
	Report    *ReportHandler
	Toasts    *ToastHandler
	// Sessions guards the tenant routes.
	Sessions middleware.SessionSource
}

// NewRouter constructs and returns an HTTP handler that serves the CRM API
// under /api and Prometheus metrics under /metrics.
//
// Routes:
//
//	POST   /api/register                  → Auth.Register
//	POST   /api/login                     → Auth.Login
//	POST   /api/logout                    → Auth.Logout
//	GET    /api/theme, PUT /api/theme     → Auth.Theme, Auth.SetTheme
//	GET    /api/toasts                    → Toasts.List
//	DELETE /api/toasts/{id}               → Toasts.Dismiss
//
// Tenant routes, protected by RequireSession:
//
//	GET    /api/session                   → Auth.Session
//	PATCH  /api/profile                   → Auth.UpdateProfile
//	GET    /api/onboarding                → Auth.Onboarding
//	POST   /api/onboarding/complete       → Auth.CompleteOnboarding
//	GET    /api/customers                 → Customers.List
//	POST   /api/customers                 → Customers.Add
//	GET    /api/customers/top             → Customers.Top
//	GET    /api/customers/churn-risk      → Customers.ChurnRisk
//	GET    /api/customers/{id}            → Customers.Get
//	PUT    /api/customers/{id}            → Customers.Update
//	DELETE /api/customers/{id}            → Customers.Delete
//	POST   /api/customers/{id}/activities → Customers.AddActivity
//	GET    /api/customers/{id}/advice     → Customers.Advice
//	GET    /api/dashboard                 → Customers.Dashboard
//	GET    /api/report                    → Report.Get
//	PUT    /api/report                    → Report.Put
//	POST   /api/report/generate           → Report.Generate
//	POST   /api/report/refine             → Report.Refine
//	GET    /api/report/export             → Report.Export
//
// Middleware chain (applied in order):
//  1. RequestID: tags each request
//  2. WithRequestLogging(logger): logs incoming requests
//  3. Recoverer: turns panics into 500
//  4. AllowContentType("application/json") on /api: rejects non-JSON bodies
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Only allow requests with Content-Type: application/json
		r.Use(chiMiddleware.AllowContentType("application/json"))

		// Public endpoints
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
		r.Get("/theme", h.Auth.Theme)
		r.Put("/theme", h.Auth.SetTheme)
		r.Get("/toasts", h.Toasts.List)
		r.Delete("/toasts/{id}", h.Toasts.Dismiss)

		// Protected group: requires an active session
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(h.Sessions))

			r.Get("/session", h.Auth.Session)
			r.Patch("/profile", h.Auth.UpdateProfile)
			r.Get("/onboarding", h.Auth.Onboarding)
			r.Post("/onboarding/complete", h.Auth.CompleteOnboarding)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", h.Customers.List)
				r.Post("/", h.Customers.Add)
				r.Get("/top", h.Customers.Top)
				r.Get("/churn-risk", h.Customers.ChurnRisk)
				r.Get("/{id}", h.Customers.Get)
				r.Put("/{id}", h.Customers.Update)
				r.Delete("/{id}", h.Customers.Delete)
				r.Post("/{id}/activities", h.Customers.AddActivity)
				r.Get("/{id}/advice", h.Customers.Advice)
			})
			r.Get("/dashboard", h.Customers.Dashboard)

			r.Route("/report", func(r chi.Router) {
				r.Get("/", h.Report.Get)
				r.Put("/", h.Report.Put)
				r.Post("/generate", h.Report.Generate)
				r.Post("/refine", h.Report.Refine)
				r.Get("/export", h.Report.Export)
			})
		})
	})

	return r
}
