package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/assetflow/handover-service/internal/api/http/handlers"
	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Signatures     *handlers.SignatureHandler
	Handovers      *handlers.HandoverHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if reg := cfg.Metrics.Registry(); reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api/v1")

	sign := api.Group("/sign")
	sign.Get("/:token", cfg.Signatures.Resolve)
	sign.Post("/:token", cfg.Signatures.Sign)
	sign.Post("/:token/dispute", cfg.Signatures.Dispute)

	staff := api.Group("/handovers", cfg.AuthMiddleware.Handle)
	staff.Post("", auth.RequireStaffRole(domain.StaffRoleAdmin, domain.StaffRoleTechnician), cfg.Handovers.Create)
	staff.Get("/:id", auth.RequireStaffRole(), cfg.Handovers.Get)
}
