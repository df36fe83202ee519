package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

// Deduplicator drops decisions already dispatched once, keyed by an
// idempotency key. Protects against double dispatch when a cycle is
// retried or two instances overlap.
type Deduplicator struct {
	redis storage.RedisClient
	ttl   time.Duration
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(redis storage.RedisClient, ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		redis: redis,
		ttl:   ttl,
	}
}

// GenerateIdempotencyKey generates an idempotency key for a decision
// Format: {symbol}:{signal_type}:{timestamp_rounded_to_second}
func GenerateIdempotencyKey(decision *models.SignalDecision) string {
	roundedTime := decision.Timestamp.Truncate(time.Second)
	return fmt.Sprintf("%s:%s:%d", decision.Symbol, decision.Type, roundedTime.Unix())
}

// IsDuplicate atomically marks the decision as seen and reports whether
// it had been seen before.
func (d *Deduplicator) IsDuplicate(ctx context.Context, decision *models.SignalDecision) (bool, error) {
	key := GenerateIdempotencyKey(decision)
	redisKey := fmt.Sprintf("signal:dedupe:%s", key)

	set, err := d.redis.SetIfAbsent(ctx, redisKey, decision.ID, d.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to check duplicate: %w", err)
	}

	if !set {
		logger.Debug("Duplicate decision detected",
			logger.String("decision_id", decision.ID),
			logger.String("symbol", decision.Symbol),
			logger.String("idempotency_key", key),
		)
		return true, nil
	}

	return false, nil
}
