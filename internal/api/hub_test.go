package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/internal/storage"
)

func newTestHub(redis storage.RedisClient) *Hub {
	cfg := config.APIConfig{
		WSPingInterval: 30 * time.Second,
		WSWriteTimeout: 10 * time.Second,
	}
	return NewHub(redis, NewAuthManager(""), "signals.live", cfg)
}

func publishedDecision(t *testing.T, symbol string) storage.PubSubMessage {
	t.Helper()
	decision := &models.SignalDecision{
		ID:        "dec-" + symbol,
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Price:     100.0,
		Type:      models.SignalBuy,
		Strength:  0.8,
		Accepted:  true,
	}
	data, err := json.Marshal(decision)
	if err != nil {
		t.Fatalf("Failed to marshal decision: %v", err)
	}
	return storage.PubSubMessage{Channel: "signals.live", Message: string(data)}
}

func drainSignal(t *testing.T, conn *Connection) *ServerMessage {
	t.Helper()
	select {
	case data := <-conn.Send:
		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal queued message: %v", err)
		}
		return &msg
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

func TestHub_BroadcastSignal(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.PubSubData = []storage.PubSubMessage{publishedDecision(t, "AAPL")}

	hub := newTestHub(redis)
	conn := NewConnection("conn-1", "trader-1", nil)
	hub.registry.Add(conn)

	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	defer hub.Stop()

	msg := drainSignal(t, conn)
	if msg == nil {
		t.Fatal("Expected a broadcast signal")
	}
	if msg.Type != "signal" {
		t.Errorf("Expected message type 'signal', got %s", msg.Type)
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if hub.GetStats().SignalsBroadcast == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Expected 1 signal broadcast, got %d", hub.GetStats().SignalsBroadcast)
}

func TestHub_BroadcastSignal_SubscriptionFiltering(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.PubSubData = []storage.PubSubMessage{publishedDecision(t, "AAPL")}

	hub := newTestHub(redis)

	matching := NewConnection("conn-1", "trader-1", nil)
	matching.Subscribe("AAPL")
	hub.registry.Add(matching)

	other := NewConnection("conn-2", "trader-2", nil)
	other.Subscribe("MSFT")
	hub.registry.Add(other)

	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	defer hub.Stop()

	if msg := drainSignal(t, matching); msg == nil {
		t.Error("Expected subscribed connection to receive the signal")
	}

	select {
	case data := <-other.Send:
		t.Errorf("Expected no signal for unsubscribed connection, got %s", string(data))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_BroadcastSignal_MalformedPayload(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.PubSubData = []storage.PubSubMessage{
		{Channel: "signals.live", Message: "{not json"},
		publishedDecision(t, "NVDA"),
	}

	hub := newTestHub(redis)
	conn := NewConnection("conn-1", "trader-1", nil)
	hub.registry.Add(conn)

	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	defer hub.Stop()

	// The malformed payload is skipped; the valid one still arrives
	msg := drainSignal(t, conn)
	if msg == nil {
		t.Fatal("Expected the valid signal to be broadcast")
	}
	if msg.Type != "signal" {
		t.Errorf("Expected message type 'signal', got %s", msg.Type)
	}
}

func TestHub_StartSubscribeError(t *testing.T) {
	redis := storage.NewMockRedisClient()
	redis.SubscribeErr = errStorage

	hub := newTestHub(redis)
	if err := hub.Start(); err == nil {
		t.Error("Expected start to fail when subscribe fails")
	}
}
