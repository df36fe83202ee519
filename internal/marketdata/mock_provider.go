package marketdata

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

// mockUniverse is a small fixed universe for local runs without a market
// data endpoint.
var mockUniverse = []models.Quote{
	{Symbol: "COMI", Name: "Commercial International Bank", Sector: "Financials", LastPrice: 82.50, DailyVolume: 2_400_000, MarketCap: 248_000_000_000},
	{Symbol: "HRHO", Name: "EFG Holding", Sector: "Financials", LastPrice: 21.30, DailyVolume: 5_100_000, MarketCap: 26_000_000_000},
	{Symbol: "SWDY", Name: "Elsewedy Electric", Sector: "Industrials", LastPrice: 54.10, DailyVolume: 1_800_000, MarketCap: 115_000_000_000},
	{Symbol: "TMGH", Name: "Talaat Moustafa Group", Sector: "Real Estate", LastPrice: 58.75, DailyVolume: 3_300_000, MarketCap: 121_000_000_000},
	{Symbol: "EAST", Name: "Eastern Company", Sector: "Consumer Staples", LastPrice: 34.20, DailyVolume: 2_900_000, MarketCap: 76_000_000_000},
	{Symbol: "ETEL", Name: "Telecom Egypt", Sector: "Telecom", LastPrice: 41.90, DailyVolume: 1_200_000, MarketCap: 71_000_000_000},
	{Symbol: "ABUK", Name: "Abu Qir Fertilizers", Sector: "Materials", LastPrice: 67.40, DailyVolume: 950_000, MarketCap: 85_000_000_000},
	{Symbol: "MFPC", Name: "Misr Fertilizers", Sector: "Materials", LastPrice: 128.60, DailyVolume: 410_000, MarketCap: 29_000_000_000},
}

// MockProvider generates deterministic synthetic market data. The same
// symbol always yields the same candle shape, so tests and local runs
// are reproducible.
type MockProvider struct {
	symbols    []string
	resolution time.Duration
	lookback   int
}

// NewMockProvider creates a synthetic provider from config.
func NewMockProvider(cfg config.MarketDataConfig) (Provider, error) {
	return &MockProvider{
		symbols:    cfg.Symbols,
		resolution: cfg.ChartResolution,
		lookback:   cfg.LookbackBars,
	}, nil
}

// Name returns the provider type.
func (m *MockProvider) Name() string { return "mock" }

// Close is a no-op for the mock provider.
func (m *MockProvider) Close() error { return nil }

// FetchUniverse returns the built-in universe, restricted to the
// configured symbols when set.
func (m *MockProvider) FetchUniverse(ctx context.Context) ([]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	quotes := make([]models.Quote, len(mockUniverse))
	copy(quotes, mockUniverse)
	if len(m.symbols) > 0 {
		quotes = filterSymbols(quotes, m.symbols)
	}
	return quotes, nil
}

// FetchSnapshot generates a deterministic snapshot for the symbol.
func (m *MockProvider) FetchSnapshot(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, models.ErrInvalidSymbol
	}

	quote := m.lookupQuote(symbol)
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))

	snapshot := &models.MarketSnapshot{
		Symbol:      quote.Symbol,
		Sector:      quote.Sector,
		LastPrice:   quote.LastPrice,
		DailyVolume: quote.DailyVolume,
		MarketCap:   quote.MarketCap,
		FetchedAt:   time.Now().UTC(),
	}

	snapshot.Candles = m.generateCandles(rng, quote.LastPrice)
	if n := len(snapshot.Candles); n > 0 {
		snapshot.LastPrice = snapshot.Candles[n-1].Close
	}
	snapshot.Book = generateBook(rng, snapshot.LastPrice)
	snapshot.Trades = generateTrades(rng, snapshot.LastPrice, snapshot.FetchedAt)

	return snapshot, nil
}

func (m *MockProvider) lookupQuote(symbol string) models.Quote {
	for _, q := range mockUniverse {
		if q.Symbol == symbol {
			return q
		}
	}
	return models.Quote{
		Symbol:      symbol,
		Sector:      "Unknown",
		LastPrice:   50.0,
		DailyVolume: 1_000_000,
		MarketCap:   10_000_000_000,
	}
}

// generateCandles walks a gentle uptrend with sine noise ending at the
// quote price, oldest first.
func (m *MockProvider) generateCandles(rng *rand.Rand, lastPrice float64) []models.Candle {
	bars := m.lookback
	if bars < 1 {
		bars = 1
	}
	end := time.Now().UTC().Truncate(m.resolution)
	start := lastPrice * 0.95

	candles := make([]models.Candle, 0, bars)
	for i := 0; i < bars; i++ {
		progress := float64(i) / float64(bars)
		mid := start + (lastPrice-start)*progress
		wave := mid * 0.004 * math.Sin(float64(i)/3)
		noise := mid * 0.002 * (rng.Float64() - 0.5)

		closePrice := mid + wave + noise
		openPrice := closePrice * (1 + 0.003*(rng.Float64()-0.5))
		high := math.Max(openPrice, closePrice) * (1 + 0.002*rng.Float64())
		low := math.Min(openPrice, closePrice) * (1 - 0.002*rng.Float64())

		candles = append(candles, models.Candle{
			Timestamp: end.Add(-time.Duration(bars-1-i) * m.resolution),
			Open:      openPrice,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    40_000 + float64(rng.Intn(20_000)),
		})
	}
	candles[len(candles)-1].Close = lastPrice
	if candles[len(candles)-1].High < lastPrice {
		candles[len(candles)-1].High = lastPrice
	}
	if candles[len(candles)-1].Low > lastPrice {
		candles[len(candles)-1].Low = lastPrice
	}
	return candles
}

func generateBook(rng *rand.Rand, price float64) models.OrderBook {
	tick := price * 0.001
	book := models.OrderBook{
		Bids: make([]models.DepthLevel, 0, 5),
		Asks: make([]models.DepthLevel, 0, 5),
	}
	for i := 0; i < 5; i++ {
		book.Bids = append(book.Bids, models.DepthLevel{
			Price:  price - tick*float64(i+1),
			Volume: 3_000 + float64(rng.Intn(4_000)),
		})
		book.Asks = append(book.Asks, models.DepthLevel{
			Price:  price + tick*float64(i+1),
			Volume: 2_000 + float64(rng.Intn(3_000)),
		})
	}
	return book
}

func generateTrades(rng *rand.Rand, price float64, now time.Time) []models.Trade {
	trades := make([]models.Trade, 0, 60)
	for i := 0; i < 60; i++ {
		side := models.TradeSideBuy
		if rng.Float64() > 0.62 {
			side = models.TradeSideSell
		}
		volume := 500 + float64(rng.Intn(8_000))
		tradePrice := price * (1 + 0.002*(rng.Float64()-0.5))
		trades = append(trades, models.Trade{
			Price:     tradePrice,
			Volume:    volume,
			Side:      side,
			Timestamp: now.Add(-time.Duration(60-i) * time.Second),
		})
	}
	return trades
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return int64(h.Sum64())
}
