package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/middleware"
	"github.com/noah-isme/admission-ledger-api/internal/service"
)

const ledgerFeedPingInterval = 30 * time.Second

// LedgerEventsHandler streams ledger events to dashboards over a websocket.
type LedgerEventsHandler struct {
	hub    service.LedgerEventHub
	logger zerolog.Logger
}

// NewLedgerEventsHandler constructs the handler.
func NewLedgerEventsHandler(hub service.LedgerEventHub, logger zerolog.Logger) *LedgerEventsHandler {
	return &LedgerEventsHandler{
		hub:    hub,
		logger: logger.With().Str("component", "ledger_events_handler").Logger(),
	}
}

// Register binds the websocket route.
func (h *LedgerEventsHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("correlation_id", middleware.GetCorrelationID(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *LedgerEventsHandler) handleConnection(conn *websocket.Conn) {
	correlation, _ := conn.Locals("correlation_id").(string)
	logger := h.logger.With().Str("correlation_id", correlation).Logger()

	events, unsubscribe := h.hub.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("ledger feed connected")
	defer logger.Info().Msg("ledger feed disconnected")

	ticker := time.NewTicker(ledgerFeedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("failed to write ledger event")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
