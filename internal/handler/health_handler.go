package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/admission-ledger-api/internal/config"
	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/service"
	"github.com/noah-isme/admission-ledger-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string           `json:"status"`
	Timestamp   time.Time        `json:"timestamp"`
	Service     string           `json:"service"`
	Environment string           `json:"environment"`
	Backend     string           `json:"backend"`
	Ledger      dto.LedgerStatus `json:"ledger"`
}

// HealthCheck reports service health. The status degrades while the ledger is
// unloaded or out of step with storage.
func HealthCheck(cfg config.Config, ledger service.AdmissionService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Backend:     cfg.StoreBackend,
		}

		if ledger != nil {
			payload.Ledger = ledger.Status(c.UserContext())
			if !payload.Ledger.Loaded || payload.Ledger.OutOfSync || payload.Ledger.PendingTC > 0 {
				payload.Status = "degraded"
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
