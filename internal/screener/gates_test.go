package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

func gateStrategy() *config.StrategyConfig {
	s := config.DefaultStrategy()
	s.MinPrice = 5
	s.MaxPrice = 200
	s.MinMarketCap = 1_000_000_000
	s.MinDailyVolume = 100_000
	s.MaxSpreadPct = 2.0
	s.BlacklistSymbols = []string{"BADCO"}
	s.Normalize()
	return s
}

func passingQuote() models.Quote {
	return models.Quote{
		Symbol:      "COMI",
		LastPrice:   80,
		DailyVolume: 2_000_000,
		MarketCap:   5_000_000_000,
	}
}

func TestQuoteGate(t *testing.T) {
	strategy := gateStrategy()

	tests := []struct {
		name   string
		mutate func(*models.Quote)
		reason string
	}{
		{"passes", func(q *models.Quote) {}, ""},
		{"blacklisted", func(q *models.Quote) { q.Symbol = "BADCO" }, GateBlacklisted},
		{"blacklist is case insensitive", func(q *models.Quote) { q.Symbol = "badco" }, GateBlacklisted},
		{"below min price", func(q *models.Quote) { q.LastPrice = 4.99 }, GatePriceRange},
		{"above max price", func(q *models.Quote) { q.LastPrice = 200.01 }, GatePriceRange},
		{"price at bounds passes", func(q *models.Quote) { q.LastPrice = 5 }, ""},
		{"small cap", func(q *models.Quote) { q.MarketCap = 999_999_999 }, GateMarketCap},
		{"thin volume", func(q *models.Quote) { q.DailyVolume = 99_999 }, GateVolume},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := passingQuote()
			tt.mutate(&q)
			reason, ok := QuoteGate(strategy, &q)
			assert.Equal(t, tt.reason, reason)
			assert.Equal(t, tt.reason == "", ok)
		})
	}
}

func TestSnapshotGateSpread(t *testing.T) {
	strategy := gateStrategy()
	snapshot := &models.MarketSnapshot{
		Symbol:      "COMI",
		LastPrice:   80,
		DailyVolume: 2_000_000,
		MarketCap:   5_000_000_000,
		Book: models.OrderBook{
			Bids: []models.DepthLevel{{Price: 79.9, Volume: 1000}},
			Asks: []models.DepthLevel{{Price: 80.1, Volume: 1000}},
		},
	}

	reason, ok := SnapshotGate(strategy, snapshot)
	assert.True(t, ok, "got reason %q", reason)

	// Widen the spread past 2%.
	snapshot.Book.Asks[0].Price = 82.0
	reason, ok = SnapshotGate(strategy, snapshot)
	assert.False(t, ok)
	assert.Equal(t, GateSpread, reason)
}

func TestSnapshotGateEmptyBook(t *testing.T) {
	strategy := gateStrategy()
	snapshot := &models.MarketSnapshot{
		Symbol:      "COMI",
		LastPrice:   80,
		DailyVolume: 2_000_000,
		MarketCap:   5_000_000_000,
		Book: models.OrderBook{
			Bids: []models.DepthLevel{{Price: 79.9, Volume: 1000}},
		},
	}

	reason, ok := SnapshotGate(strategy, snapshot)
	assert.False(t, ok)
	assert.Equal(t, GateEmptyBook, reason)
}

func TestGateErrorMessage(t *testing.T) {
	err := &GateError{Symbol: "COMI", Reason: GateSpread}
	assert.Contains(t, err.Error(), "COMI")
	assert.Contains(t, err.Error(), GateSpread)
}
