package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/service"
	"github.com/noah-isme/admission-ledger-api/internal/utils"
)

// AdmissionHandler exposes the roster and transfer certificate endpoints.
type AdmissionHandler struct {
	service service.AdmissionService
	logger  zerolog.Logger
	limiter fiber.Handler
}

// NewAdmissionHandler constructs the handler. limiter guards the mutating routes and may be nil.
func NewAdmissionHandler(service service.AdmissionService, limiter fiber.Handler, logger zerolog.Logger) *AdmissionHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AdmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "admission_handler").Logger(),
		limiter: limiter,
	}
}

// RegisterRoster binds the roster routes.
func (h *AdmissionHandler) RegisterRoster(router fiber.Router) {
	router.Get("", h.listRoster)
	router.Post("", h.limiter, h.admit)
	router.Get("/recent", h.recent)
	router.Get("/check", h.checkName)
	router.Get("/streams/:stream", h.streamView)
	router.Post("/reload", h.limiter, h.reload)
}

// RegisterTC binds the transfer certificate routes.
func (h *AdmissionHandler) RegisterTC(router fiber.Router) {
	router.Get("", h.listArchive)
	router.Post("", h.limiter, h.issueTC)
	router.Get("/pending", h.pending)
	router.Post("/reconcile", h.limiter, h.reconcile)
}

func (h *AdmissionHandler) listRoster(c *fiber.Ctx) error {
	roster := h.service.ListRoster(requestContext(c))
	return utils.SendSuccess(c, "roster retrieved", dto.RosterListResponse{Items: roster, Total: len(roster)})
}

func (h *AdmissionHandler) admit(c *fiber.Ctx) error {
	var req dto.AdmitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.service.Admit(requestContext(c), req)
	if err != nil {
		return sendLedgerError(c, h.logger, err, "admit student")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student admitted", record)
}

func (h *AdmissionHandler) checkName(c *fiber.Ctx) error {
	name := models.NormalizeName(c.Query("name"))
	if name == "" {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, service.ErrEmptyName.Error(), fiber.Map{"field": "name"})
	}

	response := dto.NameCheckResponse{Name: name}
	if existing, ok := h.service.IsNameTaken(requestContext(c), name); ok {
		response.Taken = true
		response.Existing = &existing
	}
	return utils.SendSuccess(c, "name checked", response)
}

func (h *AdmissionHandler) recent(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	return utils.SendSuccess(c, "recent admissions", h.service.RecentAdmissions(requestContext(c), limit))
}

func (h *AdmissionHandler) streamView(c *fiber.Ctx) error {
	stream := models.Stream(strings.ToUpper(strings.TrimSpace(c.Params("stream"))))
	if !stream.Valid() {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "unknown stream", fiber.Map{"field": "stream"})
	}

	return utils.SendSuccess(c, "stream retrieved", h.service.StreamView(requestContext(c), stream))
}

func (h *AdmissionHandler) reload(c *fiber.Ctx) error {
	ctx := requestContext(c)
	if err := h.service.Load(ctx); err != nil {
		return sendLedgerError(c, h.logger, err, "reload roster")
	}

	return utils.SendSuccess(c, "roster reloaded", h.service.Status(ctx))
}

func (h *AdmissionHandler) listArchive(c *fiber.Ctx) error {
	archive, err := h.service.ListTcArchive(requestContext(c))
	if err != nil {
		return sendLedgerError(c, h.logger, err, "list tc archive")
	}

	return utils.SendSuccess(c, "tc archive retrieved", dto.TcArchiveListResponse{Items: archive, Total: len(archive)})
}

func (h *AdmissionHandler) issueTC(c *fiber.Ctx) error {
	var req dto.IssueTCRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	record, err := h.service.IssueTC(requestContext(c), req)
	if err != nil {
		return sendLedgerError(c, h.logger, err, "issue tc")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "tc issued", record)
}

func (h *AdmissionHandler) pending(c *fiber.Ctx) error {
	pending := h.service.PendingTC(requestContext(c))
	return utils.SendSuccess(c, "pending tc records", dto.TcArchiveListResponse{Items: pending, Total: len(pending)})
}

func (h *AdmissionHandler) reconcile(c *fiber.Ctx) error {
	ctx := requestContext(c)
	archived, err := h.service.Reconcile(ctx)
	if err != nil {
		return sendLedgerError(c, h.logger, err, "reconcile tc archive")
	}

	return utils.SendSuccess(c, "tc archive reconciled", fiber.Map{
		"archived":  archived,
		"remaining": len(h.service.PendingTC(ctx)),
	})
}
