package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tradeworks/equity-screener/pkg/indicator"
)

// StrategyConfig is the screening strategy document. It is loaded from a
// JSON file and validated before the screener starts; a running screener
// never sees an invalid strategy.
type StrategyConfig struct {
	MinPrice         float64  `json:"min_price"`
	MaxPrice         float64  `json:"max_price"`
	MinMarketCap     float64  `json:"min_market_cap"`
	MinDailyVolume   float64  `json:"min_daily_volume"`
	MaxSpreadPct     float64  `json:"max_spread_pct"`
	BlacklistSymbols []string `json:"blacklist_symbols"`

	MinSignalStrength    float64 `json:"min_signal_strength"`
	StrongSignalStrength float64 `json:"strong_signal_strength"`
	MinTechConditions    int     `json:"min_tech_conditions"`
	MinFlowConditions    int     `json:"min_flow_conditions"`
	MinDepthConditions   int     `json:"min_depth_conditions"`

	Technical TechnicalThresholds `json:"technical_thresholds"`
	TradeFlow TradeFlowThresholds `json:"trade_flow_thresholds"`
	Depth     DepthThresholds     `json:"depth_thresholds"`
	Weights   SignalWeights       `json:"signal_weights"`

	StopLossATRMultiplier   float64 `json:"stop_loss_atr_multiplier"`
	TakeProfitATRMultiplier float64 `json:"take_profit_atr_multiplier"`
	StructuralStopLookback  int     `json:"structural_stop_lookback"`
	MaxPositionSize         float64 `json:"max_position_size"`

	Indicators indicator.Params `json:"indicator_periods"`

	blacklist map[string]struct{}
}

// TechnicalThresholds parameterize the technical condition bank.
type TechnicalThresholds struct {
	RSIOversold         float64 `json:"rsi_oversold"`
	ADXTrend            float64 `json:"adx_trend"`
	MACDSignalThreshold float64 `json:"macd_signal_threshold"`
	StochOverbought     float64 `json:"stoch_overbought"`
}

// TradeFlowThresholds parameterize the trade flow condition bank.
type TradeFlowThresholds struct {
	StrongBuyPressure           float64 `json:"strong_buy_pressure"`
	MaxSellPressure             float64 `json:"max_sell_pressure"`
	HighInstitutionalRatio      float64 `json:"high_institutional_ratio"`
	InstitutionalTradeThreshold float64 `json:"institutional_trade_threshold"`
}

// DepthThresholds parameterize the market depth condition bank.
type DepthThresholds struct {
	MinBidAskRatio        float64 `json:"min_bid_ask_ratio"`
	MaxLevelConcentration float64 `json:"max_level_concentration"`
	MinTotalDepth         float64 `json:"min_total_depth"`
}

// SignalWeights are the per-category weights used to combine condition
// pass ratios into a single signal strength. They are normalized to sum
// to 1 at load time.
type SignalWeights struct {
	Technical   float64 `json:"technical"`
	TradeFlow   float64 `json:"trade_flow"`
	MarketDepth float64 `json:"market_depth"`
}

// Sum returns the raw weight total.
func (w SignalWeights) Sum() float64 {
	return w.Technical + w.TradeFlow + w.MarketDepth
}

// Normalized returns the weights scaled so they sum to 1.
func (w SignalWeights) Normalized() SignalWeights {
	sum := w.Sum()
	if sum <= 0 {
		return w
	}
	return SignalWeights{
		Technical:   w.Technical / sum,
		TradeFlow:   w.TradeFlow / sum,
		MarketDepth: w.MarketDepth / sum,
	}
}

// DefaultStrategy returns the strategy used when a field is omitted from
// the strategy file.
func DefaultStrategy() *StrategyConfig {
	return &StrategyConfig{
		MinPrice:       1.0,
		MaxPrice:       500.0,
		MinMarketCap:   100_000_000,
		MinDailyVolume: 50_000,
		MaxSpreadPct:   2.0,

		MinSignalStrength:    0.7,
		StrongSignalStrength: 0.85,
		MinTechConditions:    4,
		MinFlowConditions:    2,
		MinDepthConditions:   2,

		Technical: TechnicalThresholds{
			RSIOversold:         30,
			ADXTrend:            25,
			MACDSignalThreshold: 0,
			StochOverbought:     80,
		},
		TradeFlow: TradeFlowThresholds{
			StrongBuyPressure:           0.6,
			MaxSellPressure:             0.4,
			HighInstitutionalRatio:      0.3,
			InstitutionalTradeThreshold: 250_000,
		},
		Depth: DepthThresholds{
			MinBidAskRatio:        1.2,
			MaxLevelConcentration: 0.35,
			MinTotalDepth:         10_000,
		},
		Weights: SignalWeights{
			Technical:   0.4,
			TradeFlow:   0.2,
			MarketDepth: 0.1,
		},

		StopLossATRMultiplier:   2.0,
		TakeProfitATRMultiplier: 5.0,
		StructuralStopLookback:  20,
		MaxPositionSize:         100_000,

		Indicators: indicator.DefaultParams(),
	}
}

// LoadStrategy reads, normalizes and validates a strategy file. Unknown
// fields are rejected so a typo in the file cannot silently fall back to
// a default.
func LoadStrategy(path string) (*StrategyConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("strategy config: %w", err)
	}
	defer f.Close()

	strategy := DefaultStrategy()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(strategy); err != nil {
		return nil, fmt.Errorf("strategy config %s: %w", path, err)
	}

	strategy.Normalize()
	if err := strategy.Validate(); err != nil {
		return nil, fmt.Errorf("strategy config %s: %w", path, err)
	}
	return strategy, nil
}

// Normalize canonicalizes the strategy in place: blacklist symbols are
// upper-cased and deduplicated, and signal weights are scaled to sum to 1.
func (s *StrategyConfig) Normalize() {
	s.blacklist = make(map[string]struct{}, len(s.BlacklistSymbols))
	cleaned := make([]string, 0, len(s.BlacklistSymbols))
	for _, sym := range s.BlacklistSymbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, seen := s.blacklist[sym]; seen {
			continue
		}
		s.blacklist[sym] = struct{}{}
		cleaned = append(cleaned, sym)
	}
	s.BlacklistSymbols = cleaned

	if s.Weights.Sum() > 0 {
		s.Weights = s.Weights.Normalized()
	}

	// The structural stop lookback doubles as the structural low window.
	s.Indicators.StructuralLookback = s.StructuralStopLookback
}

// IsBlacklisted reports whether a symbol is excluded from screening.
// Symbols are compared case-insensitively.
func (s *StrategyConfig) IsBlacklisted(symbol string) bool {
	if s.blacklist == nil {
		return false
	}
	_, found := s.blacklist[strings.ToUpper(strings.TrimSpace(symbol))]
	return found
}

// Validate checks every strategy field. The screener refuses to start on
// the first violation.
func (s *StrategyConfig) Validate() error {
	if s.MinPrice <= 0 {
		return fmt.Errorf("min_price must be positive, got %v", s.MinPrice)
	}
	if s.MaxPrice < s.MinPrice {
		return fmt.Errorf("max_price %v must not be below min_price %v", s.MaxPrice, s.MinPrice)
	}
	if s.MinMarketCap < 0 {
		return fmt.Errorf("min_market_cap must not be negative, got %v", s.MinMarketCap)
	}
	if s.MinDailyVolume < 0 {
		return fmt.Errorf("min_daily_volume must not be negative, got %v", s.MinDailyVolume)
	}
	if s.MaxSpreadPct <= 0 {
		return fmt.Errorf("max_spread_pct must be positive, got %v", s.MaxSpreadPct)
	}
	if s.MinSignalStrength <= 0 || s.MinSignalStrength > 1 {
		return fmt.Errorf("min_signal_strength must be in (0, 1], got %v", s.MinSignalStrength)
	}
	if s.StrongSignalStrength < s.MinSignalStrength || s.StrongSignalStrength > 1 {
		return fmt.Errorf("strong_signal_strength must be in [min_signal_strength, 1], got %v", s.StrongSignalStrength)
	}
	if s.MinTechConditions < 1 {
		return fmt.Errorf("min_tech_conditions must be at least 1, got %d", s.MinTechConditions)
	}
	if s.MinFlowConditions < 1 {
		return fmt.Errorf("min_flow_conditions must be at least 1, got %d", s.MinFlowConditions)
	}
	if s.MinDepthConditions < 1 {
		return fmt.Errorf("min_depth_conditions must be at least 1, got %d", s.MinDepthConditions)
	}
	if s.Technical.RSIOversold <= 0 || s.Technical.RSIOversold >= 100 {
		return fmt.Errorf("rsi_oversold must be in (0, 100), got %v", s.Technical.RSIOversold)
	}
	if s.Technical.ADXTrend < 0 || s.Technical.ADXTrend >= 100 {
		return fmt.Errorf("adx_trend must be in [0, 100), got %v", s.Technical.ADXTrend)
	}
	if s.Technical.StochOverbought <= 0 || s.Technical.StochOverbought > 100 {
		return fmt.Errorf("stoch_overbought must be in (0, 100], got %v", s.Technical.StochOverbought)
	}
	if s.TradeFlow.StrongBuyPressure <= 0 || s.TradeFlow.StrongBuyPressure > 1 {
		return fmt.Errorf("strong_buy_pressure must be in (0, 1], got %v", s.TradeFlow.StrongBuyPressure)
	}
	if s.TradeFlow.MaxSellPressure < 0 || s.TradeFlow.MaxSellPressure > 1 {
		return fmt.Errorf("max_sell_pressure must be in [0, 1], got %v", s.TradeFlow.MaxSellPressure)
	}
	if s.TradeFlow.HighInstitutionalRatio <= 0 || s.TradeFlow.HighInstitutionalRatio > 1 {
		return fmt.Errorf("high_institutional_ratio must be in (0, 1], got %v", s.TradeFlow.HighInstitutionalRatio)
	}
	if s.TradeFlow.InstitutionalTradeThreshold < 0 {
		return fmt.Errorf("institutional_trade_threshold must not be negative, got %v", s.TradeFlow.InstitutionalTradeThreshold)
	}
	if s.Depth.MinBidAskRatio <= 0 {
		return fmt.Errorf("min_bid_ask_ratio must be positive, got %v", s.Depth.MinBidAskRatio)
	}
	if s.Depth.MaxLevelConcentration <= 0 || s.Depth.MaxLevelConcentration > 1 {
		return fmt.Errorf("max_level_concentration must be in (0, 1], got %v", s.Depth.MaxLevelConcentration)
	}
	if s.Depth.MinTotalDepth < 0 {
		return fmt.Errorf("min_total_depth must not be negative, got %v", s.Depth.MinTotalDepth)
	}
	if s.Weights.Technical < 0 || s.Weights.TradeFlow < 0 || s.Weights.MarketDepth < 0 {
		return fmt.Errorf("signal_weights must not be negative")
	}
	if s.Weights.Sum() <= 0 {
		return fmt.Errorf("signal_weights must sum to a positive value")
	}
	if s.StopLossATRMultiplier <= 0 {
		return fmt.Errorf("stop_loss_atr_multiplier must be positive, got %v", s.StopLossATRMultiplier)
	}
	if s.TakeProfitATRMultiplier <= 0 {
		return fmt.Errorf("take_profit_atr_multiplier must be positive, got %v", s.TakeProfitATRMultiplier)
	}
	if s.StructuralStopLookback < 1 {
		return fmt.Errorf("structural_stop_lookback must be at least 1, got %d", s.StructuralStopLookback)
	}
	if s.MaxPositionSize <= 0 {
		return fmt.Errorf("max_position_size must be positive, got %v", s.MaxPositionSize)
	}
	if err := s.Indicators.Validate(); err != nil {
		return fmt.Errorf("indicator_periods: %w", err)
	}
	return nil
}
