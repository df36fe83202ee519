package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

func testMarketDataConfig(baseURL string) config.MarketDataConfig {
	return config.MarketDataConfig{
		Provider:           "http",
		BaseURL:            baseURL,
		Headers:            map[string]string{"X-Api-Key": "test-key"},
		RequestTimeout:     2 * time.Second,
		RateLimitPerMinute: 6000,
		RateLimitBurst:     100,
		ChartResolution:    5 * time.Minute,
		LookbackBars:       50,
	}
}

func TestFetchUniverse(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/marketwatch", r.URL.Path)
		gotKey = r.Header.Get("X-Api-Key")
		_ = json.NewEncoder(w).Encode([]quoteDTO{
			{Symbol: "COMI", Sector: "Financials", LastPrice: 82.5, DailyVolume: 2e6, MarketCap: 2.4e11},
			{Symbol: "", LastPrice: 10},      // dropped: no symbol
			{Symbol: "BADP", LastPrice: -1},  // dropped: bad price
			{Symbol: "SWDY", Sector: "Industrials", LastPrice: 54.1, DailyVolume: 1.8e6, MarketCap: 1.1e11},
		})
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(testMarketDataConfig(server.URL))
	require.NoError(t, err)
	defer provider.Close()

	quotes, err := provider.FetchUniverse(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "COMI", quotes[0].Symbol)
	assert.Equal(t, "SWDY", quotes[1].Symbol)
	assert.Equal(t, "test-key", gotKey)
}

func TestFetchUniverseSymbolFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]quoteDTO{
			{Symbol: "COMI", LastPrice: 82.5},
			{Symbol: "SWDY", LastPrice: 54.1},
			{Symbol: "ETEL", LastPrice: 41.9},
		})
	}))
	defer server.Close()

	cfg := testMarketDataConfig(server.URL)
	cfg.Symbols = []string{"SWDY"}
	provider, err := NewHTTPProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	quotes, err := provider.FetchUniverse(context.Background())
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "SWDY", quotes[0].Symbol)
}

func TestFetchSnapshot(t *testing.T) {
	now := time.Now().Unix()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/symbols/COMI/snapshot", r.URL.Path)
		assert.Equal(t, "300", r.URL.Query().Get("resolution"))
		assert.Equal(t, "50", r.URL.Query().Get("bars"))
		_ = json.NewEncoder(w).Encode(snapshotDTO{
			Quote: quoteDTO{Symbol: "COMI", Sector: "Financials", LastPrice: 82.5, DailyVolume: 2e6, MarketCap: 2.4e11},
			Candles: []candleDTO{
				// Out of order on purpose; the provider sorts ascending.
				{Timestamp: now, Open: 82.1, High: 82.6, Low: 82.0, Close: 82.5, Volume: 1000},
				{Timestamp: now - 300, Open: 81.8, High: 82.2, Low: 81.7, Close: 82.1, Volume: 900},
			},
			Trades: []tradeDTO{
				{Price: 82.4, Volume: 500, Side: "buy", Timestamp: now - 10},
				{Price: 82.3, Volume: 200, Side: "S", Timestamp: now - 5},
			},
		})
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(testMarketDataConfig(server.URL))
	require.NoError(t, err)
	defer provider.Close()

	snapshot, err := provider.FetchSnapshot(context.Background(), "COMI")
	require.NoError(t, err)

	assert.Equal(t, "COMI", snapshot.Symbol)
	require.Len(t, snapshot.Candles, 2)
	assert.True(t, snapshot.Candles[0].Timestamp.Before(snapshot.Candles[1].Timestamp))
	require.Len(t, snapshot.Trades, 2)
	assert.Equal(t, models.TradeSideBuy, snapshot.Trades[0].Side)
	assert.Equal(t, models.TradeSideSell, snapshot.Trades[1].Side)
	assert.False(t, snapshot.FetchedAt.IsZero())
}

func TestFetchSnapshotSortsBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dto snapshotDTO
		dto.Quote = quoteDTO{Symbol: "COMI", LastPrice: 82.5}
		dto.Book.Bids = []levelDTO{
			{Price: 82.3, Volume: 100},
			{Price: 82.4, Volume: 200}, // best bid listed second
			{Price: 0, Volume: 50},     // dropped
		}
		dto.Book.Asks = []levelDTO{
			{Price: 82.7, Volume: 150},
			{Price: 82.6, Volume: 100}, // best ask listed second
		}
		_ = json.NewEncoder(w).Encode(dto)
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(testMarketDataConfig(server.URL))
	require.NoError(t, err)
	defer provider.Close()

	snapshot, err := provider.FetchSnapshot(context.Background(), "COMI")
	require.NoError(t, err)

	assert.Equal(t, 82.4, snapshot.Book.BestBid())
	assert.Equal(t, 82.6, snapshot.Book.BestAsk())
	assert.Len(t, snapshot.Book.Bids, 2)
}

func TestFetchSnapshotTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	cfg := testMarketDataConfig(server.URL)
	cfg.RequestTimeout = 20 * time.Millisecond
	provider, err := NewHTTPProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.FetchSnapshot(context.Background(), "COMI")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrFetchTimeout), "got %v", err)
}

func TestFetchSnapshotAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	provider, err := NewHTTPProvider(testMarketDataConfig(server.URL))
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.FetchSnapshot(context.Background(), "COMI")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAPIRequest), "got %v", err)
	assert.False(t, errors.Is(err, models.ErrFetchTimeout))
}

func TestFetchRateLimited(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(snapshotDTO{Quote: quoteDTO{Symbol: "COMI", LastPrice: 82.5}})
	}))
	defer server.Close()

	cfg := testMarketDataConfig(server.URL)
	cfg.RateLimitPerMinute = 60 // one token per second
	cfg.RateLimitBurst = 1
	provider, err := NewHTTPProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	// First call consumes the only token; the second must wait ~1s, so a
	// short context deadline should expire before it is sent.
	_, err = provider.FetchSnapshot(context.Background(), "COMI")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = provider.FetchSnapshot(ctx, "COMI")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "second request must not reach the server")
}

func TestFactory(t *testing.T) {
	factory := NewFactory()
	assert.ElementsMatch(t, []string{"http", "mock"}, factory.List())

	_, err := factory.Create(config.MarketDataConfig{Provider: "csv"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	provider, err := factory.Create(config.MarketDataConfig{
		Provider:        "mock",
		ChartResolution: time.Minute,
		LookbackBars:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, "mock", provider.Name())
}
