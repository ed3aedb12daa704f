package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/admission-ledger-api/internal/dto"
)

// LedgerSummaryService produces the dashboard overview.
type LedgerSummaryService interface {
	Summary(ctx context.Context) (dto.LedgerSummaryResponse, error)
}

type cachedLedgerSummary struct {
	ledger    AdmissionService
	cache     *redis.Client
	cacheTTL  time.Duration
	keyPrefix string
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewCachedLedgerSummary caches the dashboard summary in redis, keyed by the
// roster revision and pending TC count so any ledger change misses the cache.
// With a nil client every call goes straight to the ledger.
func NewCachedLedgerSummary(ledger AdmissionService, cache *redis.Client, ttl time.Duration, keyPrefix string, logger zerolog.Logger) LedgerSummaryService {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &cachedLedgerSummary{
		ledger:    ledger,
		cache:     cache,
		cacheTTL:  ttl,
		keyPrefix: keyPrefix,
		logger:    logger.With().Str("component", "ledger_summary_cache").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/admission-ledger-api/internal/service/summary"),
	}
}

func (s *cachedLedgerSummary) Summary(ctx context.Context) (dto.LedgerSummaryResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.summary")
	defer span.End()

	status := s.ledger.Status(ctx)
	// An out-of-sync ledger has no trustworthy revision to key on.
	if s.cache == nil || status.Revision == "" || status.OutOfSync {
		return s.compute(ctx, span)
	}

	cacheKey := fmt.Sprintf("%s:summary:%s:%d", s.keyPrefix, status.Revision, status.PendingTC)
	span.SetAttributes(attribute.String("summary.cache_key", cacheKey))

	cached, err := s.cache.Get(ctx, cacheKey).Result()
	if err == nil {
		var response dto.LedgerSummaryResponse
		if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
			response.CacheHit = true
			span.SetAttributes(attribute.Bool("summary.cache_hit", true))
			return response, nil
		}
	} else if err != redis.Nil {
		s.logger.Warn().Err(err).Msg("failed to read summary cache")
		span.RecordError(err)
	}

	summary, err := s.compute(ctx, span)
	if err != nil {
		return summary, err
	}

	payload, err := json.Marshal(summary)
	if err == nil {
		if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to store summary cache")
			span.RecordError(err)
		}
	}
	return summary, nil
}

func (s *cachedLedgerSummary) compute(ctx context.Context, span trace.Span) (dto.LedgerSummaryResponse, error) {
	summary, err := s.ledger.Summary(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summary_failed")
		return dto.LedgerSummaryResponse{}, err
	}
	return summary, nil
}
