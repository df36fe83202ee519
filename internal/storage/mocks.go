package storage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/tradeworks/equity-screener/internal/models"
)

// MockDecisionStorage is a mock implementation of DecisionStorage for testing
type MockDecisionStorage struct {
	mu        sync.Mutex
	Decisions []*models.SignalDecision
	SaveErr   error
	GetErr    error
}

func (m *MockDecisionStorage) SaveDecisions(ctx context.Context, decisions []*models.SignalDecision) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	m.Decisions = append(m.Decisions, decisions...)
	m.mu.Unlock()
	return nil
}

func (m *MockDecisionStorage) GetDecisions(ctx context.Context, filter DecisionFilter) ([]*models.SignalDecision, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.SignalDecision
	for _, decision := range m.Decisions {
		if filter.Symbol != "" && decision.Symbol != filter.Symbol {
			continue
		}
		if filter.AcceptedOnly && !decision.Accepted {
			continue
		}
		if filter.MinStrength > 0 && decision.Strength < filter.MinStrength {
			continue
		}
		if !filter.StartTime.IsZero() && decision.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && decision.Timestamp.After(filter.EndTime) {
			continue
		}
		result = append(result, decision)
	}
	// Apply limit and offset
	start := filter.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + filter.Limit
	if end > len(result) {
		end = len(result)
	}
	if filter.Limit > 0 {
		return result[start:end], nil
	}
	return result[start:], nil
}

func (m *MockDecisionStorage) GetDecision(ctx context.Context, id string) (*models.SignalDecision, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, decision := range m.Decisions {
		if decision.ID == id {
			return decision, nil
		}
	}
	return nil, nil
}

func (m *MockDecisionStorage) Saved() []*models.SignalDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SignalDecision, len(m.Decisions))
	copy(out, m.Decisions)
	return out
}

func (m *MockDecisionStorage) Close() error {
	return nil
}

// MockSubscriberStorage is a mock implementation of SubscriberStorage for testing
type MockSubscriberStorage struct {
	mu          sync.Mutex
	Subscribers map[string]models.Subscriber
	AddErr      error
	RemoveErr   error
	ListErr     error
}

func NewMockSubscriberStorage() *MockSubscriberStorage {
	return &MockSubscriberStorage{
		Subscribers: make(map[string]models.Subscriber),
	}
}

func (m *MockSubscriberStorage) AddSubscriber(ctx context.Context, chatID string) error {
	if m.AddErr != nil {
		return m.AddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Subscribers[chatID]; !exists {
		m.Subscribers[chatID] = models.Subscriber{ChatID: chatID, CreatedAt: time.Now().UTC()}
	}
	return nil
}

func (m *MockSubscriberStorage) RemoveSubscriber(ctx context.Context, chatID string) error {
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	m.mu.Lock()
	delete(m.Subscribers, chatID)
	m.mu.Unlock()
	return nil
}

func (m *MockSubscriberStorage) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]models.Subscriber, 0, len(m.Subscribers))
	for _, sub := range m.Subscribers {
		result = append(result, sub)
	}
	return result, nil
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu           sync.Mutex
	Data         map[string]string
	Published    []PubSubMessage
	PubSubData   []PubSubMessage
	SetErr       error
	PublishErr   error
	SubscribeErr error
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data: make(map[string]string),
	}
}

func (m *MockRedisClient) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.SetErr != nil {
		return false, m.SetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Data[key]; exists {
		return false, nil
	}
	m.Data[key] = value
	return true, nil
}

func (m *MockRedisClient) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	_, exists := m.Data[key]
	m.mu.Unlock()
	return exists, nil
}

func (m *MockRedisClient) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.Data, key)
	m.mu.Unlock()
	return nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: string(jsonData)})
	m.mu.Unlock()
	return nil
}

func (m *MockRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan PubSubMessage, error) {
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	m.mu.Lock()
	ch := make(chan PubSubMessage, len(m.PubSubData))
	for _, msg := range m.PubSubData {
		ch <- msg
	}
	m.mu.Unlock()
	close(ch)
	return ch, nil
}

func (m *MockRedisClient) PublishedMessages() []PubSubMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PubSubMessage, len(m.Published))
	copy(out, m.Published)
	return out
}

func (m *MockRedisClient) Ping(ctx context.Context) error {
	return nil
}

func (m *MockRedisClient) Close() error {
	return nil
}
