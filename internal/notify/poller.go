package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

// telegramUpdate is one entry from the getUpdates response
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// UpdatePoller long-polls the Telegram getUpdates endpoint and maintains
// the subscriber list: /start registers a chat, /stop removes it.
type UpdatePoller struct {
	notifier    *TelegramNotifier
	subscribers storage.SubscriberStorage

	offset  int64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewUpdatePoller creates a poller bound to the notifier's bot
func NewUpdatePoller(notifier *TelegramNotifier, subscribers storage.SubscriberStorage) *UpdatePoller {
	if notifier == nil {
		panic("notifier cannot be nil")
	}
	if subscribers == nil {
		panic("subscriber storage cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &UpdatePoller{
		notifier:    notifier,
		subscribers: subscribers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins the long-poll loop
func (p *UpdatePoller) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("update poller is already running")
	}
	p.running = true
	p.mu.Unlock()

	logger.Info("Starting Telegram update poller",
		logger.Duration("poll_interval", p.notifier.cfg.PollInterval),
	)

	p.wg.Add(1)
	go p.pollLoop()

	return nil
}

// Stop halts the poll loop
func (p *UpdatePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	logger.Info("Stopping Telegram update poller")
	p.cancel()
	p.wg.Wait()
	logger.Info("Telegram update poller stopped")
}

// pollLoop fetches updates until the poller is stopped. getUpdates itself
// blocks server-side up to PollTimeout, so no ticker is needed between
// successful polls.
func (p *UpdatePoller) pollLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		updates, err := p.fetchUpdates(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			logger.Warn("Failed to fetch Telegram updates", logger.ErrorField(err))
			// Back off before retrying
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(p.notifier.cfg.PollInterval):
			}
			continue
		}

		for i := range updates {
			p.handleUpdate(p.ctx, &updates[i])
		}
	}
}

// fetchUpdates calls getUpdates with the running offset
func (p *UpdatePoller) fetchUpdates(ctx context.Context) ([]telegramUpdate, error) {
	url := fmt.Sprintf("%s/getUpdates?offset=%d&timeout=%d",
		p.notifier.baseURL, p.offset, int(p.notifier.cfg.PollTimeout.Seconds()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.notifier.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	var payload struct {
		OK     bool             `json:"ok"`
		Result []telegramUpdate `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return payload.Result, nil
}

// handleUpdate processes one update and advances the offset
func (p *UpdatePoller) handleUpdate(ctx context.Context, update *telegramUpdate) {
	if update.UpdateID >= p.offset {
		p.offset = update.UpdateID + 1
	}

	chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
	if update.Message.Chat.ID == 0 {
		return
	}

	switch update.Message.Text {
	case "/start":
		if err := p.subscribers.AddSubscriber(ctx, chatID); err != nil {
			logger.Error("Failed to add subscriber",
				logger.ErrorField(err),
				logger.String("chat_id", chatID),
			)
			return
		}
		logger.Info("New subscriber registered", logger.String("chat_id", chatID))
		if err := p.notifier.SendMessage(ctx, chatID,
			"✅ Subscribed. You will receive trade signals as they are detected. Send /stop to unsubscribe."); err != nil {
			logger.Warn("Failed to send welcome message",
				logger.ErrorField(err),
				logger.String("chat_id", chatID),
			)
		}

	case "/stop":
		if err := p.subscribers.RemoveSubscriber(ctx, chatID); err != nil {
			logger.Error("Failed to remove subscriber",
				logger.ErrorField(err),
				logger.String("chat_id", chatID),
			)
			return
		}
		logger.Info("Subscriber removed", logger.String("chat_id", chatID))
		if err := p.notifier.SendMessage(ctx, chatID,
			"🛑 Unsubscribed. Send /start to receive signals again."); err != nil {
			logger.Warn("Failed to send goodbye message",
				logger.ErrorField(err),
				logger.String("chat_id", chatID),
			)
		}
	}
}
