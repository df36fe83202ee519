package storage

import (
	"context"
	"time"

	"github.com/tradeworks/equity-screener/internal/models"
)

// DecisionStorage defines the interface for signal decision storage
type DecisionStorage interface {
	// SaveDecisions hands a cycle's decisions to storage. The hand-off is
	// a short, non-blocking enqueue; the actual write happens async.
	SaveDecisions(ctx context.Context, decisions []*models.SignalDecision) error

	// GetDecisions retrieves decisions with filtering options
	GetDecisions(ctx context.Context, filter DecisionFilter) ([]*models.SignalDecision, error)

	// GetDecision retrieves a single decision by ID, nil when not found
	GetDecision(ctx context.Context, id string) (*models.SignalDecision, error)

	// Close drains pending writes and closes the storage connection
	Close() error
}

// DecisionFilter defines filtering options for decision queries
type DecisionFilter struct {
	Symbol       string
	AcceptedOnly bool
	MinStrength  float64
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
	Offset       int
}

// SubscriberStorage defines the interface for alert subscriber storage
type SubscriberStorage interface {
	// AddSubscriber registers a chat for alerts; adding twice is a no-op
	AddSubscriber(ctx context.Context, chatID string) error

	// RemoveSubscriber unregisters a chat
	RemoveSubscriber(ctx context.Context, chatID string) error

	// ListSubscribers returns every registered chat
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
}

// RedisClient defines the Redis operations the alert dispatch pipeline
// and the live signal feed need.
type RedisClient interface {
	// SetIfAbsent sets key to value with a TTL only when the key does not
	// exist, returning whether it was set. Backs cooldown and dedupe.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Delete deletes a key
	Delete(ctx context.Context, key string) error

	// Publish publishes a message to a pub/sub channel as JSON
	Publish(ctx context.Context, channel string, message interface{}) error

	// Subscribe subscribes to pub/sub channels
	Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error)

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes the Redis connection
	Close() error
}

// PubSubMessage represents a message from Redis pub/sub
type PubSubMessage struct {
	Channel string
	Message string
}
