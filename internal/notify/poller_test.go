package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/storage"
)

func newPollerFixture(t *testing.T, handler http.HandlerFunc) (*UpdatePoller, *storage.MockSubscriberStorage) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.TelegramConfig{
		BotToken:     "123:abc",
		APIBaseURL:   server.URL,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  time.Second,
		SendTimeout:  time.Second,
	}

	subscribers := storage.NewMockSubscriberStorage()
	notifier := NewTelegramNotifier(cfg, subscribers)
	return NewUpdatePoller(notifier, subscribers), subscribers
}

func telegramOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"ok":true,"result":[]}`))
}

func TestUpdatePoller_StartCommand(t *testing.T) {
	poller, subscribers := newPollerFixture(t, telegramOK)

	update := telegramUpdate{UpdateID: 41}
	update.Message.Text = "/start"
	update.Message.Chat.ID = 555123

	poller.handleUpdate(context.Background(), &update)

	subs, err := subscribers.ListSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "555123", subs[0].ChatID)
	assert.Equal(t, int64(42), poller.offset)
}

func TestUpdatePoller_StopCommand(t *testing.T) {
	poller, subscribers := newPollerFixture(t, telegramOK)
	require.NoError(t, subscribers.AddSubscriber(context.Background(), "555123"))

	update := telegramUpdate{UpdateID: 7}
	update.Message.Text = "/stop"
	update.Message.Chat.ID = 555123

	poller.handleUpdate(context.Background(), &update)

	subs, err := subscribers.ListSubscribers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestUpdatePoller_IgnoresOtherMessages(t *testing.T) {
	poller, subscribers := newPollerFixture(t, telegramOK)

	update := telegramUpdate{UpdateID: 1}
	update.Message.Text = "hello"
	update.Message.Chat.ID = 555123

	poller.handleUpdate(context.Background(), &update)

	subs, err := subscribers.ListSubscribers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
	// Offset still advances past handled updates
	assert.Equal(t, int64(2), poller.offset)
}

func TestUpdatePoller_FetchUpdates(t *testing.T) {
	poller, _ := newPollerFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/getUpdates")
		assert.Equal(t, "5", r.URL.Query().Get("offset"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[{"update_id":5,"message":{"text":"/start","chat":{"id":99}}}]}`))
	})
	poller.offset = 5

	updates, err := poller.fetchUpdates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(5), updates[0].UpdateID)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, int64(99), updates[0].Message.Chat.ID)
}

func TestTelegramNotifier_Broadcast(t *testing.T) {
	var sent []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		sent = append(sent, r.Form.Get("chat_id"))
		assert.Equal(t, "Markdown", r.Form.Get("parse_mode"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := config.TelegramConfig{
		BotToken:    "123:abc",
		APIBaseURL:  server.URL,
		SendTimeout: time.Second,
	}
	subscribers := storage.NewMockSubscriberStorage()
	require.NoError(t, subscribers.AddSubscriber(context.Background(), "100"))
	require.NoError(t, subscribers.AddSubscriber(context.Background(), "200"))

	notifier := NewTelegramNotifier(cfg, subscribers)
	require.NoError(t, notifier.Broadcast(context.Background(), "test signal"))

	assert.Len(t, sent, 2)
	assert.ElementsMatch(t, []string{"100", "200"}, sent)
}
