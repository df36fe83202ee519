package models

import (
	"time"
)

// Candle represents a single OHLCV bar at the configured chart resolution
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate validates a Candle
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if c.High < c.Low {
		return ErrInvalidCandle
	}
	if c.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// DepthLevel represents one price level on one side of the order book
type DepthLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderBook represents the visible depth of book for a symbol.
// Bids are ordered best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// BestBid returns the highest bid price, or 0 when the bid side is empty
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// SpreadPct returns the bid/ask spread as a percentage of the midpoint.
// Returns 0 when either side of the book is empty.
func (b *OrderBook) SpreadPct() float64 {
	bid := b.BestBid()
	ask := b.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid * 100
}

// TradeSide indicates which side initiated a trade
type TradeSide string

const (
	TradeSideBuy     TradeSide = "buy"
	TradeSideSell    TradeSide = "sell"
	TradeSideUnknown TradeSide = "unknown"
)

// Trade represents a single execution from the trade tape
type Trade struct {
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Value     float64   `json:"value,omitempty"`
	Side      TradeSide `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// Notional returns the trade's notional value, deriving it from
// price and volume when the feed did not supply one.
func (t *Trade) Notional() float64 {
	if t.Value > 0 {
		return t.Value
	}
	return t.Price * t.Volume
}

// Quote is one entry of the market-watch universe list: the cheap
// per-symbol fields used for pre-filtering before any detail fetch.
type Quote struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name,omitempty"`
	Sector      string  `json:"sector,omitempty"`
	LastPrice   float64 `json:"last_price"`
	DailyVolume float64 `json:"daily_volume"`
	MarketCap   float64 `json:"market_cap"`
}

// Validate validates a Quote
func (q *Quote) Validate() error {
	if q.Symbol == "" {
		return ErrInvalidSymbol
	}
	if q.LastPrice <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// MarketSnapshot is the full per-symbol view consumed by one evaluation
// pass: quote fields plus OHLCV history, order book and recent trades.
// Snapshots are immutable for the lifetime of the scan cycle that
// fetched them.
type MarketSnapshot struct {
	Symbol      string     `json:"symbol"`
	Sector      string     `json:"sector,omitempty"`
	LastPrice   float64    `json:"last_price"`
	DailyVolume float64    `json:"daily_volume"`
	MarketCap   float64    `json:"market_cap"`
	Candles     []Candle   `json:"candles"`
	Book        OrderBook  `json:"book"`
	Trades      []Trade    `json:"trades"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// Validate validates a MarketSnapshot
func (s *MarketSnapshot) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSymbol
	}
	if s.LastPrice <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// IndicatorSet holds the derived numeric values for one evaluation pass.
// All values are computed once per snapshot and discarded with it.
type IndicatorSet struct {
	RSI           float64 `json:"rsi"`
	ADX           float64 `json:"adx"`
	ATR           float64 `json:"atr"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHist      float64 `json:"macd_hist"`
	BBUpper       float64 `json:"bb_upper"`
	BBMiddle      float64 `json:"bb_middle"`
	BBLower       float64 `json:"bb_lower"`
	StochK        float64 `json:"stoch_k"`
	StochD        float64 `json:"stoch_d"`
	VWAP          float64 `json:"vwap"`
	StructuralLow float64 `json:"structural_low"`
	Close         float64 `json:"close"`
}

// FlowMetrics holds order-flow aggregates derived from the trade tape
type FlowMetrics struct {
	BuyVolume          float64 `json:"buy_volume"`
	SellVolume         float64 `json:"sell_volume"`
	TotalValue         float64 `json:"total_value"`
	InstitutionalValue float64 `json:"institutional_value"`
	BuyPressure        float64 `json:"buy_pressure"`
	SellPressure       float64 `json:"sell_pressure"`
	InstitutionalRatio float64 `json:"institutional_ratio"`
	PriceImpact        float64 `json:"price_impact"`
	TradeCount         int     `json:"trade_count"`
}

// DepthMetrics holds order-book aggregates derived from visible depth
type DepthMetrics struct {
	BidVolume     float64 `json:"bid_volume"`
	AskVolume     float64 `json:"ask_volume"`
	BestBid       float64 `json:"best_bid"`
	BestAsk       float64 `json:"best_ask"`
	SpreadPct     float64 `json:"spread_pct"`
	MaxLevelShare float64 `json:"max_level_share"`
	LevelCount    int     `json:"level_count"`
}

// Category identifies one condition bank
type Category string

const (
	CategoryTechnical Category = "technical"
	CategoryFlow      Category = "trade_flow"
	CategoryDepth     Category = "market_depth"
)

// ConditionResult is the outcome of evaluating one category's condition
// bank: how many named conditions passed out of the bank, and which.
type ConditionResult struct {
	Category Category `json:"category"`
	Passed   []string `json:"passed"`
	BankSize int      `json:"bank_size"`
}

// Count returns the number of satisfied conditions
func (r *ConditionResult) Count() int {
	return len(r.Passed)
}

// Ratio returns satisfied/bank_size, the normalized per-category score
func (r *ConditionResult) Ratio() float64 {
	if r.BankSize == 0 {
		return 0
	}
	return float64(len(r.Passed)) / float64(r.BankSize)
}

// SignalType classifies an accepted decision by strength
type SignalType string

const (
	SignalNeutral   SignalType = "NEUTRAL"
	SignalBuy       SignalType = "BUY"
	SignalStrongBuy SignalType = "STRONG_BUY"
)

// RiskLevels holds the risk parameters attached to an accepted decision
type RiskLevels struct {
	Entry        float64 `json:"entry"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	PositionSize float64 `json:"position_size"`
}

// Validate validates RiskLevels
func (r *RiskLevels) Validate() error {
	if r.Entry <= 0 {
		return ErrInvalidRisk
	}
	if r.StopLoss >= r.Entry || r.TakeProfit <= r.Entry {
		return ErrInvalidRisk
	}
	if r.PositionSize <= 0 {
		return ErrInvalidRisk
	}
	return nil
}

// RewardRatio returns the take-profit distance over the stop distance
func (r *RiskLevels) RewardRatio() float64 {
	risk := r.Entry - r.StopLoss
	if risk <= 0 {
		return 0
	}
	return (r.TakeProfit - r.Entry) / risk
}

// Subscriber is a chat registered to receive signal alerts.
type Subscriber struct {
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SignalDecision is the final pass/fail outcome of one evaluation pass.
// Risk is populated only when Accepted is true. Ownership transfers to
// persistence/notification once the cycle reports.
type SignalDecision struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Sector     string            `json:"sector,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Price      float64           `json:"price"`
	Type       SignalType        `json:"type"`
	Strength   float64           `json:"strength"`
	Accepted   bool              `json:"accepted"`
	Reason     string            `json:"reason,omitempty"`
	Conditions []ConditionResult `json:"conditions"`
	Indicators *IndicatorSet     `json:"indicators,omitempty"`
	Flow       *FlowMetrics      `json:"flow,omitempty"`
	Depth      *DepthMetrics     `json:"depth,omitempty"`
	Risk       *RiskLevels       `json:"risk,omitempty"`
	MarketCap  float64           `json:"market_cap,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
}

// Validate validates a SignalDecision
func (d *SignalDecision) Validate() error {
	if d.ID == "" {
		return ErrInvalidDecisionID
	}
	if d.Symbol == "" {
		return ErrInvalidSymbol
	}
	if d.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if d.Strength < 0 || d.Strength > 1 {
		return ErrInvalidStrength
	}
	if d.Accepted && d.Risk == nil {
		return ErrMissingRisk
	}
	if !d.Accepted && d.Risk != nil {
		return ErrUnexpectedRisk
	}
	return nil
}

// CategoryCount returns the satisfied count for the given category,
// or -1 when the category was not evaluated.
func (d *SignalDecision) CategoryCount(cat Category) int {
	for i := range d.Conditions {
		if d.Conditions[i].Category == cat {
			return d.Conditions[i].Count()
		}
	}
	return -1
}
