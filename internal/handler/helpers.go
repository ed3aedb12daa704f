package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/middleware"
	"github.com/noah-isme/admission-ledger-api/internal/service"
	"github.com/noah-isme/admission-ledger-api/internal/utils"
)

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// sendLedgerError maps ledger failures onto HTTP statuses. action names the
// failed operation in the log line and the 500 message.
func sendLedgerError(c *fiber.Ctx, logger zerolog.Logger, err error, action string) error {
	var (
		validationErr *service.ValidationError
		duplicateErr  *service.DuplicateNameError
		notFoundErr   *service.StudentNotFoundError
		dateErr       *service.DateParseError
		partialErr    *service.PartialTcFailure
	)

	switch {
	case errors.As(err, &validationErr):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, validationErr.Error(), fiber.Map{"field": validationErr.Field})
	case errors.Is(err, service.ErrUnsupportedFormat), errors.Is(err, service.ErrEmptyImport):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &duplicateErr):
		return utils.SendErrorWithDetails(c, fiber.StatusConflict, duplicateErr.Error(), duplicateErr.Existing)
	case errors.As(err, &notFoundErr):
		return utils.SendError(c, fiber.StatusNotFound, notFoundErr.Error())
	case errors.Is(err, service.ErrConcurrentModification):
		requestLogger(logger, c).Warn().Err(err).Msg(action + " rejected, roster changed underneath the ledger")
		return utils.SendError(c, fiber.StatusConflict, "roster was modified elsewhere, reload and retry")
	case errors.Is(err, service.ErrLedgerNotLoaded):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.As(err, &dateErr):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, dateErr.Error())
	case errors.As(err, &partialErr):
		requestLogger(logger, c).Error().Err(err).Msg(action + " partially applied")
		return utils.SendErrorWithDetails(c, fiber.StatusMultiStatus,
			"student removed from roster but the tc archive could not be written, reconciliation pending", partialErr.Record)
	default:
		requestLogger(logger, c).Error().Err(err).Msg("failed to " + action)
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to "+action)
	}
}
