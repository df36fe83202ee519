package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_dispatch_total",
			Help: "Accepted decisions entering the dispatch pipeline, by outcome",
		},
		[]string{"outcome"}, // "notified", "deduplicated", "cooldown", "failed"
	)

	dispatchPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_publish_total",
			Help: "Live channel publications by status",
		},
		[]string{"status"},
	)
)

// DispatcherStats holds counters for the dispatch pipeline
type DispatcherStats struct {
	mu sync.RWMutex

	Received     int64     `json:"received"`
	Notified     int64     `json:"notified"`
	Deduplicated int64     `json:"deduplicated"`
	InCooldown   int64     `json:"in_cooldown"`
	Published    int64     `json:"published"`
	Failed       int64     `json:"failed"`
	LastSignalAt time.Time `json:"last_signal_at"`
}

// SignalDispatcher routes accepted decisions to their consumers: the
// live Redis channel for WebSocket clients and the Telegram broadcast.
// Duplicates and alerts inside the cooldown window are suppressed before
// anything is sent.
type SignalDispatcher struct {
	redis        storage.RedisClient
	deduplicator *Deduplicator
	cooldown     *CooldownManager
	notifier     Notifier
	channel      string
	stats        DispatcherStats
}

// NewSignalDispatcher creates a dispatcher. Redis and notifier may be
// nil; the corresponding step is then skipped.
func NewSignalDispatcher(
	redis storage.RedisClient,
	deduplicator *Deduplicator,
	cooldown *CooldownManager,
	notifier Notifier,
	channel string,
) *SignalDispatcher {
	return &SignalDispatcher{
		redis:        redis,
		deduplicator: deduplicator,
		cooldown:     cooldown,
		notifier:     notifier,
		channel:      channel,
	}
}

// Dispatch runs every accepted decision through the pipeline. A failure
// on one decision never blocks the others; the scan cycle does not wait
// on delivery outcomes.
func (s *SignalDispatcher) Dispatch(ctx context.Context, decisions []*models.SignalDecision) {
	for _, decision := range decisions {
		s.dispatchOne(ctx, decision)
	}
}

func (s *SignalDispatcher) dispatchOne(ctx context.Context, decision *models.SignalDecision) {
	s.stats.mu.Lock()
	s.stats.Received++
	s.stats.LastSignalAt = time.Now()
	s.stats.mu.Unlock()

	// Step 1: Deduplication
	if s.deduplicator != nil {
		isDuplicate, err := s.deduplicator.IsDuplicate(ctx, decision)
		if err != nil {
			s.recordFailure(decision, "deduplication failed", err)
			return
		}
		if isDuplicate {
			dispatchTotal.WithLabelValues("deduplicated").Inc()
			s.stats.mu.Lock()
			s.stats.Deduplicated++
			s.stats.mu.Unlock()
			return
		}
	}

	// Step 2: Cooldown
	if s.cooldown != nil {
		suppressed, err := s.cooldown.CheckAndSetCooldown(ctx, decision)
		if err != nil {
			s.recordFailure(decision, "cooldown check failed", err)
			return
		}
		if suppressed {
			dispatchTotal.WithLabelValues("cooldown").Inc()
			s.stats.mu.Lock()
			s.stats.InCooldown++
			s.stats.mu.Unlock()
			return
		}
	}

	// Step 3: Publish to the live channel for WebSocket clients
	if s.redis != nil && s.channel != "" {
		if err := s.redis.Publish(ctx, s.channel, decision); err != nil {
			dispatchPublishTotal.WithLabelValues("error").Inc()
			logger.Warn("Failed to publish decision to live channel",
				logger.ErrorField(err),
				logger.String("decision_id", decision.ID),
				logger.String("channel", s.channel),
			)
			// Continue to Telegram, the channels are independent
		} else {
			dispatchPublishTotal.WithLabelValues("success").Inc()
			s.stats.mu.Lock()
			s.stats.Published++
			s.stats.mu.Unlock()
		}
	}

	// Step 4: Broadcast to subscribers
	if s.notifier != nil {
		message := FormatSignalMessage(decision)
		if err := s.notifier.Broadcast(ctx, message); err != nil {
			s.recordFailure(decision, "broadcast failed", err)
			return
		}
	}

	dispatchTotal.WithLabelValues("notified").Inc()
	s.stats.mu.Lock()
	s.stats.Notified++
	s.stats.mu.Unlock()

	logger.Info("Signal dispatched",
		logger.String("decision_id", decision.ID),
		logger.String("symbol", decision.Symbol),
		logger.String("signal_type", string(decision.Type)),
		logger.Float64("strength", decision.Strength),
	)
}

func (s *SignalDispatcher) recordFailure(decision *models.SignalDecision, msg string, err error) {
	dispatchTotal.WithLabelValues("failed").Inc()
	s.stats.mu.Lock()
	s.stats.Failed++
	s.stats.mu.Unlock()
	logger.Error("Dispatch failed: "+msg,
		logger.ErrorField(err),
		logger.String("decision_id", decision.ID),
		logger.String("symbol", decision.Symbol),
	)
}

// GetStats returns a copy of the pipeline counters
func (s *SignalDispatcher) GetStats() DispatcherStats {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	return DispatcherStats{
		Received:     s.stats.Received,
		Notified:     s.stats.Notified,
		Deduplicated: s.stats.Deduplicated,
		InCooldown:   s.stats.InCooldown,
		Published:    s.stats.Published,
		Failed:       s.stats.Failed,
		LastSignalAt: s.stats.LastSignalAt,
	}
}
