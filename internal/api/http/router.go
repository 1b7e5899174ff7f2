package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/workflow-service/internal/api/http/handlers"
	"github.com/spec-kit/workflow-service/internal/auth"
	"github.com/spec-kit/workflow-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	WorkItems      *handlers.WorkItemsHandler
	Queues         *handlers.QueuesHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	items := api.Group("/work-items")
	items.Post("/", cfg.WorkItems.Create)
	items.Get("/", cfg.WorkItems.List)
	items.Get("/:id", cfg.WorkItems.Get)
	items.Get("/:id/transitions", cfg.WorkItems.AvailableTransitions)
	items.Post("/:id/transitions", cfg.WorkItems.Transition)
	items.Post("/:id/assignment", cfg.WorkItems.Assign)
	items.Delete("/:id/assignment", cfg.WorkItems.Release)
	items.Patch("/:id/priority", cfg.WorkItems.ChangePriority)
	items.Post("/:id/notes", cfg.WorkItems.AddNote)
	items.Get("/:id/notes", cfg.WorkItems.Notes)
	items.Get("/:id/history", cfg.WorkItems.History)

	api.Get("/queues", cfg.Queues.List)
	api.Get("/queues/:id/items", cfg.Queues.Items)
	api.Get("/aging/summary", cfg.Queues.AgingSummary)
}
