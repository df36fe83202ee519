package screener

import (
	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

// Evaluation carries everything the condition banks read for one symbol.
// It is built once per evaluation pass and discarded with it.
type Evaluation struct {
	Snapshot   *models.MarketSnapshot
	Indicators *models.IndicatorSet
	Flow       models.FlowMetrics
	Depth      models.DepthMetrics
	Strategy   *config.StrategyConfig
}

// Condition is one named check in a category bank.
type Condition struct {
	name string
	eval func(ev *Evaluation) bool
}

// Name returns the condition's stable identifier, recorded on decisions.
func (c Condition) Name() string { return c.name }

// Banks holds the three fixed condition banks evaluated per symbol, in
// registration order.
type Banks struct {
	technical []Condition
	flow      []Condition
	depth     []Condition
}

// NewBanks builds the built-in condition banks.
func NewBanks() *Banks {
	return &Banks{
		technical: []Condition{
			{"rsi_oversold", func(ev *Evaluation) bool {
				return ev.Indicators.RSI < ev.Strategy.Technical.RSIOversold
			}},
			{"adx_trending", func(ev *Evaluation) bool {
				return ev.Indicators.ADX > ev.Strategy.Technical.ADXTrend
			}},
			{"macd_above_signal", func(ev *Evaluation) bool {
				return ev.Indicators.MACDHist > ev.Strategy.Technical.MACDSignalThreshold
			}},
			{"price_above_bb_mid", func(ev *Evaluation) bool {
				return ev.Indicators.Close > ev.Indicators.BBMiddle
			}},
			{"stoch_bullish", func(ev *Evaluation) bool {
				return ev.Indicators.StochK > ev.Indicators.StochD &&
					ev.Indicators.StochK < ev.Strategy.Technical.StochOverbought
			}},
			{"price_above_vwap", func(ev *Evaluation) bool {
				return ev.Indicators.VWAP > 0 && ev.Indicators.Close > ev.Indicators.VWAP
			}},
		},
		flow: []Condition{
			{"strong_buy_pressure", func(ev *Evaluation) bool {
				return sidedVolume(ev) > 0 &&
					ev.Flow.BuyPressure >= ev.Strategy.TradeFlow.StrongBuyPressure
			}},
			{"muted_sell_pressure", func(ev *Evaluation) bool {
				return sidedVolume(ev) > 0 &&
					ev.Flow.SellPressure <= ev.Strategy.TradeFlow.MaxSellPressure
			}},
			{"high_institutional_ratio", func(ev *Evaluation) bool {
				return ev.Flow.TotalValue > 0 &&
					ev.Flow.InstitutionalRatio >= ev.Strategy.TradeFlow.HighInstitutionalRatio
			}},
			{"positive_price_impact", func(ev *Evaluation) bool {
				return ev.Flow.TradeCount > 0 && ev.Flow.PriceImpact > 0
			}},
		},
		depth: []Condition{
			{"bid_depth_dominance", func(ev *Evaluation) bool {
				return ev.Depth.AskVolume > 0 &&
					ev.Depth.BidVolume >= ev.Depth.AskVolume*ev.Strategy.Depth.MinBidAskRatio
			}},
			{"balanced_levels", func(ev *Evaluation) bool {
				return ev.Depth.MaxLevelShare > 0 &&
					ev.Depth.MaxLevelShare <= ev.Strategy.Depth.MaxLevelConcentration
			}},
			{"adequate_depth", func(ev *Evaluation) bool {
				total := ev.Depth.BidVolume + ev.Depth.AskVolume
				return total > 0 && total >= ev.Strategy.Depth.MinTotalDepth
			}},
		},
	}
}

func sidedVolume(ev *Evaluation) float64 {
	return ev.Flow.BuyVolume + ev.Flow.SellVolume
}

// Sizes returns the bank sizes in category order.
func (b *Banks) Sizes() (technical, flow, depth int) {
	return len(b.technical), len(b.flow), len(b.depth)
}

// Evaluate runs all three banks and returns one result per category, in
// technical, trade flow, market depth order.
func (b *Banks) Evaluate(ev *Evaluation) []models.ConditionResult {
	return []models.ConditionResult{
		evaluateBank(models.CategoryTechnical, b.technical, ev),
		evaluateBank(models.CategoryFlow, b.flow, ev),
		evaluateBank(models.CategoryDepth, b.depth, ev),
	}
}

func evaluateBank(category models.Category, bank []Condition, ev *Evaluation) models.ConditionResult {
	result := models.ConditionResult{
		Category: category,
		BankSize: len(bank),
	}
	for _, condition := range bank {
		if condition.eval(ev) {
			result.Passed = append(result.Passed, condition.name)
		}
	}
	return result
}
