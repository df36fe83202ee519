package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

var (
	telegramSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_telegram_send_total",
			Help: "Total Telegram sendMessage calls by status",
		},
		[]string{"status"},
	)
)

// Notifier delivers a formatted alert to every subscriber.
type Notifier interface {
	Broadcast(ctx context.Context, message string) error
}

// TelegramNotifier sends Markdown messages through the Telegram bot API
// to every chat registered in subscriber storage.
type TelegramNotifier struct {
	cfg         config.TelegramConfig
	subscribers storage.SubscriberStorage
	client      *http.Client
	baseURL     string
}

// NewTelegramNotifier creates a Telegram notifier. Panics on nil storage;
// use NewNotifier to fall back to a no-op when no token is configured.
func NewTelegramNotifier(cfg config.TelegramConfig, subscribers storage.SubscriberStorage) *TelegramNotifier {
	if subscribers == nil {
		panic("subscriber storage cannot be nil")
	}

	return &TelegramNotifier{
		cfg:         cfg,
		subscribers: subscribers,
		client:      &http.Client{Timeout: cfg.SendTimeout},
		baseURL:     fmt.Sprintf("%s/bot%s", strings.TrimRight(cfg.APIBaseURL, "/"), cfg.BotToken),
	}
}

// NewNotifier returns a Telegram notifier when a bot token is configured,
// otherwise a no-op notifier so the scan loop runs without Telegram.
func NewNotifier(cfg config.TelegramConfig, subscribers storage.SubscriberStorage) Notifier {
	if cfg.BotToken == "" {
		logger.Info("No Telegram bot token configured, notifications disabled")
		return &NoopNotifier{}
	}
	return NewTelegramNotifier(cfg, subscribers)
}

// SendMessage sends one Markdown message to one chat
func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID, message string) error {
	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", message)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/sendMessage", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		telegramSendTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		telegramSendTotal.WithLabelValues("error").Inc()
		var apiResp struct {
			Description string `json:"description"`
		}
		json.NewDecoder(resp.Body).Decode(&apiResp)
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode, apiResp.Description)
	}

	telegramSendTotal.WithLabelValues("success").Inc()
	return nil
}

// Broadcast sends the message to every registered subscriber. A failed
// chat is logged and skipped; the broadcast continues.
func (n *TelegramNotifier) Broadcast(ctx context.Context, message string) error {
	subscribers, err := n.subscribers.ListSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscribers: %w", err)
	}

	if len(subscribers) == 0 {
		logger.Debug("No subscribers registered, skipping broadcast")
		return nil
	}

	sent := 0
	for _, sub := range subscribers {
		if err := n.SendMessage(ctx, sub.ChatID, message); err != nil {
			logger.Warn("Failed to send Telegram message",
				logger.ErrorField(err),
				logger.String("chat_id", sub.ChatID),
			)
			continue
		}
		sent++
	}

	logger.Debug("Broadcast complete",
		logger.Int("subscribers", len(subscribers)),
		logger.Int("sent", sent),
	)

	return nil
}

// NoopNotifier drops every message. Used when no bot token is configured.
type NoopNotifier struct{}

func (n *NoopNotifier) Broadcast(ctx context.Context, message string) error {
	return nil
}
