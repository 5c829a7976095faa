package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/repaart/support-desk/internal/api/http/handlers"
	"github.com/repaart/support-desk/internal/auth"
	"github.com/repaart/support-desk/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Desks          *handlers.DesksHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAdmin())

	tickets := api.Group("/tickets")
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/export", cfg.Tickets.ExportTickets)
	tickets.Post("/reset", cfg.Tickets.ResetCenter)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Post("/:id/replies", cfg.Tickets.Reply)
	tickets.Patch("/:id/read", cfg.Tickets.SetRead)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)

	desks := api.Group("/desks")
	desks.Post("/", cfg.Desks.Open)
	desks.Get("/:id", cfg.Desks.View)
	desks.Get("/:id/events", cfg.Desks.Events)
	desks.Put("/:id/filter", cfg.Desks.SetFilter)
	desks.Put("/:id/selection", cfg.Desks.Select)
	desks.Put("/:id/draft", cfg.Desks.SetDraft)
	desks.Post("/:id/reply", cfg.Desks.Reply)
	desks.Post("/:id/read/:ticketID", cfg.Desks.ToggleRead)
	desks.Patch("/:id/tickets/:ticketID/status", cfg.Desks.ChangeStatus)
	desks.Delete("/:id/tickets/:ticketID", cfg.Desks.DeleteTicket)
	desks.Post("/:id/reset", cfg.Desks.Reset)
	desks.Delete("/:id", cfg.Desks.Close)
}
