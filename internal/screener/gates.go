package screener

import (
	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

// Gate rejection reasons. Gated symbols are excluded before any indicator
// work and produce no decision.
const (
	GateBlacklisted = "blacklisted"
	GatePriceRange  = "price_out_of_range"
	GateMarketCap   = "market_cap_below_min"
	GateVolume      = "daily_volume_below_min"
	GateSpread      = "spread_above_max"
	GateEmptyBook   = "empty_order_book"
)

// GateError reports which hard gate excluded a symbol. It is a skip, not
// a failure.
type GateError struct {
	Symbol string
	Reason string
}

func (e *GateError) Error() string {
	return "symbol " + e.Symbol + " gated: " + e.Reason
}

// QuoteGate checks the universe-level gates against a quote. It returns
// the rejection reason and false when the symbol is excluded. The spread
// gate is not checked here; quotes carry no book.
func QuoteGate(strategy *config.StrategyConfig, q *models.Quote) (string, bool) {
	if strategy.IsBlacklisted(q.Symbol) {
		return GateBlacklisted, false
	}
	if q.LastPrice < strategy.MinPrice || q.LastPrice > strategy.MaxPrice {
		return GatePriceRange, false
	}
	if q.MarketCap < strategy.MinMarketCap {
		return GateMarketCap, false
	}
	if q.DailyVolume < strategy.MinDailyVolume {
		return GateVolume, false
	}
	return "", true
}

// SnapshotGate re-checks every hard gate against fresh snapshot data,
// including the spread gate. A book missing either side cannot prove the
// spread bound and is gated out.
func SnapshotGate(strategy *config.StrategyConfig, s *models.MarketSnapshot) (string, bool) {
	if strategy.IsBlacklisted(s.Symbol) {
		return GateBlacklisted, false
	}
	if s.LastPrice < strategy.MinPrice || s.LastPrice > strategy.MaxPrice {
		return GatePriceRange, false
	}
	if s.MarketCap < strategy.MinMarketCap {
		return GateMarketCap, false
	}
	if s.DailyVolume < strategy.MinDailyVolume {
		return GateVolume, false
	}
	if s.Book.BestBid() <= 0 || s.Book.BestAsk() <= 0 {
		return GateEmptyBook, false
	}
	if s.Book.SpreadPct() > strategy.MaxSpreadPct {
		return GateSpread, false
	}
	return "", true
}
