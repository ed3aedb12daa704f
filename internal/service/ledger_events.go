package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
	"github.com/noah-isme/admission-ledger-api/internal/observability"
)

const ledgerEventBufferSize = 16

// LedgerEventPublisher announces roster changes.
type LedgerEventPublisher interface {
	Publish(ctx context.Context, event dto.LedgerEvent)
}

// LedgerEventHub fans ledger events out to local subscribers and peer instances.
type LedgerEventHub interface {
	LedgerEventPublisher
	Subscribe() (<-chan dto.LedgerEvent, func())
	Start(ctx context.Context)
}

type ledgerEventHub struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string

	mu          sync.RWMutex
	subscribers map[chan dto.LedgerEvent]struct{}
}

type ledgerEnvelope struct {
	Source string          `json:"source"`
	Event  dto.LedgerEvent `json:"event"`
	SentAt time.Time       `json:"sent_at"`
}

// NewLedgerEventHub constructs the event hub. Redis and NATS are optional; with
// neither configured events only reach subscribers of this process.
func NewLedgerEventHub(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) LedgerEventHub {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &ledgerEventHub{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "ledger_event_hub").Logger(),
		nodeID:       uuid.NewString(),
		subscribers:  make(map[chan dto.LedgerEvent]struct{}),
	}
}

func (h *ledgerEventHub) Start(ctx context.Context) {
	if h.redis != nil && h.redisChannel != "" {
		go h.consumeRedis(ctx)
	}
	if h.nats != nil && h.natsSubject != "" {
		go h.consumeNATS(ctx)
	}
}

func (h *ledgerEventHub) Publish(ctx context.Context, event dto.LedgerEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	h.broadcast(event)
	observability.LedgerEventsPublished().WithLabelValues(event.Type).Inc()

	payload, err := json.Marshal(ledgerEnvelope{Source: h.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to encode ledger event")
		return
	}

	if h.redis != nil && h.redisChannel != "" {
		if err := h.redis.Publish(ctx, h.redisChannel, payload).Err(); err != nil {
			h.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to publish ledger event to redis")
		}
	}
	if h.nats != nil && h.natsSubject != "" {
		if err := h.nats.Publish(h.natsSubject, payload); err != nil {
			h.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to publish ledger event to nats")
		}
	}
}

func (h *ledgerEventHub) Subscribe() (<-chan dto.LedgerEvent, func()) {
	ch := make(chan dto.LedgerEvent, ledgerEventBufferSize)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	observability.LedgerSubscribers().Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
			observability.LedgerSubscribers().Dec()
		})
	}
}

func (h *ledgerEventHub) broadcast(event dto.LedgerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Debug().Str("event", event.Type).Msg("dropping ledger event for slow subscriber")
		}
	}
}

func (h *ledgerEventHub) consumeRedis(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, h.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			h.logger.Error().Err(err).Msg("ledger event redis subscription closed")
			return
		}
		h.handlePeerPayload([]byte(msg.Payload))
	}
}

func (h *ledgerEventHub) consumeNATS(ctx context.Context) {
	sub, err := h.nats.Subscribe(h.natsSubject, func(msg *nats.Msg) {
		h.handlePeerPayload(msg.Data)
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to subscribe to nats ledger subject")
		return
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		h.logger.Warn().Err(err).Msg("failed to drain ledger nats subscription")
	}
}

// handlePeerPayload rebroadcasts events published by other instances.
func (h *ledgerEventHub) handlePeerPayload(payload []byte) {
	var envelope ledgerEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid ledger event payload")
		return
	}
	if envelope.Source == h.nodeID {
		return
	}
	h.broadcast(envelope.Event)
}
