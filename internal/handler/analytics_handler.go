package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/service"
	"github.com/noah-isme/admission-ledger-api/internal/utils"
)

// AnalyticsHandler serves the roster aggregations behind the dashboard charts.
type AnalyticsHandler struct {
	service   service.AdmissionService
	summaries service.LedgerSummaryService
	logger    zerolog.Logger
}

// NewAnalyticsHandler constructs the handler. summaries may be nil, in which
// case the dashboard summary is computed from the ledger on every request.
func NewAnalyticsHandler(ledger service.AdmissionService, summaries service.LedgerSummaryService, logger zerolog.Logger) *AnalyticsHandler {
	if summaries == nil {
		summaries = ledger
	}
	return &AnalyticsHandler{
		service:   ledger,
		summaries: summaries,
		logger:    logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// Register binds the analytics routes.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Get("/fields/:field", h.byField)
	router.Get("/pivot", h.pivot)
	router.Get("/dates", h.byDate)
	router.Get("/daily", h.daily)
	router.Get("/summary", h.summary)
}

func (h *AnalyticsHandler) byField(c *fiber.Ctx) error {
	field, err := models.ParseField(c.Params("field"))
	if err != nil {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"field": "field"})
	}

	result, err := h.service.AggregateByField(requestContext(c), field)
	if err != nil {
		return sendLedgerError(c, h.logger, err, "aggregate roster")
	}

	return utils.SendSuccess(c, "roster aggregated", result)
}

func (h *AnalyticsHandler) pivot(c *fiber.Ctx) error {
	row, err := models.ParseField(c.Query("row"))
	if err != nil {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"field": "row"})
	}
	col, err := models.ParseField(c.Query("col"))
	if err != nil {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, err.Error(), fiber.Map{"field": "col"})
	}

	result, err := h.service.CrossTabulate(requestContext(c), row, col)
	if err != nil {
		return sendLedgerError(c, h.logger, err, "cross tabulate roster")
	}

	return utils.SendSuccess(c, "roster cross tabulated", result)
}

func (h *AnalyticsHandler) byDate(c *fiber.Ctx) error {
	result, err := h.service.AdmissionsByDate(requestContext(c))
	if err != nil {
		return sendLedgerError(c, h.logger, err, "count admissions by date")
	}

	return utils.SendSuccess(c, "admissions by date", result)
}

func (h *AnalyticsHandler) daily(c *fiber.Ctx) error {
	result, err := h.service.DailyTotals(requestContext(c))
	if err != nil {
		return sendLedgerError(c, h.logger, err, "count daily admissions")
	}

	return utils.SendSuccess(c, "daily admissions", result)
}

func (h *AnalyticsHandler) summary(c *fiber.Ctx) error {
	result, err := h.summaries.Summary(requestContext(c))
	if err != nil {
		return sendLedgerError(c, h.logger, err, "summarise ledger")
	}

	return utils.SendSuccess(c, "ledger summary", result)
}
