package handler

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/models"
	"github.com/noah-isme/admission-ledger-api/internal/service"
	"github.com/noah-isme/admission-ledger-api/internal/utils"
)

const (
	rosterExportName  = "admission_data"
	archiveExportName = "tc_records"
)

// TransferHandler serves roster snapshots and bulk admission uploads.
type TransferHandler struct {
	service  service.RosterTransfer
	logger   zerolog.Logger
	maxBytes int64
	limiter  fiber.Handler
}

// NewTransferHandler constructs the handler. Uploads larger than maxBytes are rejected.
func NewTransferHandler(service service.RosterTransfer, maxBytes int64, limiter fiber.Handler, logger zerolog.Logger) *TransferHandler {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &TransferHandler{
		service:  service,
		logger:   logger.With().Str("component", "transfer_handler").Logger(),
		maxBytes: maxBytes,
		limiter:  limiter,
	}
}

// RegisterRoster binds the roster export and import routes.
func (h *TransferHandler) RegisterRoster(router fiber.Router) {
	router.Get("/export", h.exportRoster)
	router.Post("/import", h.limiter, h.importRoster)
}

// RegisterTC binds the archive export route.
func (h *TransferHandler) RegisterTC(router fiber.Router) {
	router.Get("/export", h.exportArchive)
}

func (h *TransferHandler) exportRoster(c *fiber.Ctx) error {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	name := rosterExportName
	var stream models.Stream
	if raw := strings.TrimSpace(c.Query("stream")); raw != "" {
		stream = models.Stream(strings.ToUpper(raw))
		if !stream.Valid() {
			return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "unknown stream", fiber.Map{"field": "stream"})
		}
		name = fmt.Sprintf("%s_stream_students", stream)
	}

	var buf bytes.Buffer
	if err := h.service.ExportRoster(requestContext(c), &buf, format, stream); err != nil {
		return sendLedgerError(c, h.logger, err, "export roster")
	}

	return sendAttachment(c, format, name, buf.Bytes())
}

func (h *TransferHandler) exportArchive(c *fiber.Ctx) error {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var buf bytes.Buffer
	if err := h.service.ExportTcArchive(requestContext(c), &buf, format); err != nil {
		return sendLedgerError(c, h.logger, err, "export tc archive")
	}

	return sendAttachment(c, format, archiveExportName, buf.Bytes())
}

func (h *TransferHandler) importRoster(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "file is required", fiber.Map{"field": "file"})
	}
	if h.maxBytes > 0 && header.Size > h.maxBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
	}

	file, err := header.Open()
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to open uploaded file")
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read file")
	}

	result, err := h.service.Import(requestContext(c), data)
	if err != nil {
		if len(result.Admitted) > 0 {
			requestLogger(h.logger, c).Warn().Int("admitted", len(result.Admitted)).Msg("import stopped after partial progress")
		}
		return sendLedgerError(c, h.logger, err, "import roster")
	}

	status := fiber.StatusOK
	if len(result.Admitted) > 0 {
		status = fiber.StatusCreated
	}
	return utils.SendSuccessWithStatus(c, status, fmt.Sprintf("%d admitted, %d rejected", len(result.Admitted), len(result.Rejected)), result)
}

func sendAttachment(c *fiber.Ctx, format service.ExportFormat, name string, body []byte) error {
	c.Attachment(format.Filename(name))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return c.Status(fiber.StatusOK).Send(body)
}
