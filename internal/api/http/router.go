package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/clearance-service/internal/api/http/handlers"
	"github.com/spec-kit/clearance-service/internal/auth"
	"github.com/spec-kit/clearance-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Profiles       *handlers.ProfileHandler
	Applications   *handlers.ApplicationsHandler
	Staff          *handlers.StaffHandler
	Webhooks       *handlers.WebhooksHandler
	AuthMiddleware *auth.AuthMiddleware
	WebhookSecret  string
	// Gatherer backs /metrics when set.
	Gatherer prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	hooks := app.Group("/hooks", handlers.RequireWebhookSecret(cfg.WebhookSecret))
	hooks.Post("/auth/principal-created", cfg.Webhooks.PrincipalCreated)
	hooks.Post("/storage/finalize", cfg.Webhooks.StorageFinalize)
	hooks.Post("/email/delivery", cfg.Webhooks.EmailDelivery)

	v1 := app.Group("/v1", cfg.AuthMiddleware.Handle)
	v1.Get("/profiles/me", cfg.Profiles.GetMe)
	v1.Patch("/profiles/me", cfg.Profiles.PatchMe)
	v1.Get("/notifications", cfg.Profiles.Notifications)
	v1.Post("/verification/issue", cfg.Profiles.IssueCode)
	v1.Post("/verification/validate", cfg.Profiles.ValidateCode)

	v1.Post("/applications", cfg.Applications.Create)
	v1.Get("/applications", cfg.Applications.List)
	v1.Get("/applications/:id", cfg.Applications.Get)
	v1.Patch("/applications/:id", cfg.Applications.Update)
	v1.Post("/applications/:id/history-document", cfg.Applications.HistoryDocument)
	v1.Post("/applications/:id/decision", auth.RequireStaff(), cfg.Applications.Decide)

	v1.Get("/review-queue", auth.RequireStaff(), cfg.Staff.ReviewQueue)
	v1.Post("/profiles/:id/decision", auth.RequireStaff(), cfg.Staff.Decide)
	v1.Get("/dashboard", auth.RequireStaff(), cfg.Staff.Dashboard)
	v1.Post("/counters/reconcile", auth.RequireStaff(), cfg.Staff.Reconcile)
	v1.Put("/users/:id/role", auth.RequireRoles(domain.RoleAdmin), cfg.Staff.AssignRole)
}
