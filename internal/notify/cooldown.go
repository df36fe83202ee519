package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

// CooldownManager suppresses repeat alerts for the same symbol and
// signal type within the cooldown window.
type CooldownManager struct {
	redis storage.RedisClient
	ttl   time.Duration
}

// NewCooldownManager creates a new cooldown manager
func NewCooldownManager(redis storage.RedisClient, ttl time.Duration) *CooldownManager {
	return &CooldownManager{
		redis: redis,
		ttl:   ttl,
	}
}

// GenerateCooldownKey generates a cooldown key for a decision
// Format: cooldown:{symbol}:{signal_type}
func GenerateCooldownKey(decision *models.SignalDecision) string {
	return fmt.Sprintf("cooldown:%s:%s", decision.Symbol, decision.Type)
}

// CheckAndSetCooldown atomically claims the cooldown window for this
// symbol and type. Returns true when the decision should be suppressed
// because another alert already holds the window.
func (c *CooldownManager) CheckAndSetCooldown(ctx context.Context, decision *models.SignalDecision) (bool, error) {
	key := GenerateCooldownKey(decision)

	set, err := c.redis.SetIfAbsent(ctx, key, decision.ID, c.ttl)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}

	if !set {
		logger.Debug("Decision in cooldown period",
			logger.String("decision_id", decision.ID),
			logger.String("symbol", decision.Symbol),
			logger.String("signal_type", string(decision.Type)),
		)
		return true, nil
	}

	logger.Debug("Set cooldown for decision",
		logger.String("decision_id", decision.ID),
		logger.String("symbol", decision.Symbol),
		logger.Duration("ttl", c.ttl),
	)

	return false, nil
}
