package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/admission-ledger-api/internal/config"
	"github.com/noah-isme/admission-ledger-api/internal/handler"
	"github.com/noah-isme/admission-ledger-api/internal/observability"
	"github.com/noah-isme/admission-ledger-api/internal/service"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Ledger           service.AdmissionService
	AdmissionHandler *handler.AdmissionHandler
	AnalyticsHandler *handler.AnalyticsHandler
	TransferHandler  *handler.TransferHandler
	EventsHandler    *handler.LedgerEventsHandler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Ledger))

	roster := api.Group("/roster")
	tc := api.Group("/tc")

	// Transfer routes first so /roster/export never reaches a roster param route.
	if deps.TransferHandler != nil {
		deps.TransferHandler.RegisterRoster(roster)
		deps.TransferHandler.RegisterTC(tc)
	}

	if deps.AdmissionHandler != nil {
		deps.AdmissionHandler.RegisterRoster(roster)
		deps.AdmissionHandler.RegisterTC(tc)
	}

	if deps.AnalyticsHandler != nil {
		deps.AnalyticsHandler.Register(api.Group("/analytics"))
	}

	if deps.EventsHandler != nil {
		deps.EventsHandler.Register(api.Group("/ledger"))
	}
}
