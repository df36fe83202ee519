package screener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
	"github.com/tradeworks/equity-screener/pkg/indicator"
)

// Engine runs one full evaluation pass per symbol snapshot: hard gates,
// indicator computation, the three condition banks, strength aggregation
// and risk levels. It holds no per-symbol state and is safe for
// concurrent use.
type Engine struct {
	strategy *config.StrategyConfig
	banks    *Banks
	sizer    PositionSizer
}

// NewEngine creates an evaluation engine for a validated strategy. A nil
// sizer falls back to the liquidity sizer. The category minimums must be
// satisfiable by the bank sizes or no symbol could ever be accepted.
func NewEngine(strategy *config.StrategyConfig, sizer PositionSizer) (*Engine, error) {
	if strategy == nil {
		return nil, fmt.Errorf("engine requires a strategy")
	}
	if sizer == nil {
		sizer = NewLiquiditySizer()
	}

	banks := NewBanks()
	tech, flow, depth := banks.Sizes()
	if strategy.MinTechConditions > tech {
		return nil, fmt.Errorf("min_tech_conditions %d exceeds bank size %d", strategy.MinTechConditions, tech)
	}
	if strategy.MinFlowConditions > flow {
		return nil, fmt.Errorf("min_flow_conditions %d exceeds bank size %d", strategy.MinFlowConditions, flow)
	}
	if strategy.MinDepthConditions > depth {
		return nil, fmt.Errorf("min_depth_conditions %d exceeds bank size %d", strategy.MinDepthConditions, depth)
	}

	return &Engine{
		strategy: strategy,
		banks:    banks,
		sizer:    sizer,
	}, nil
}

// RequiredBars returns the minimum candle history one evaluation needs.
func (e *Engine) RequiredBars() int {
	return e.strategy.Indicators.RequiredBars()
}

// Evaluate screens a single snapshot. Outcomes:
//
//   - a decision (accepted or rejected) and nil error
//   - nil and a *GateError when a hard gate excludes the symbol
//   - nil and ErrInsufficientData when the history is too short
//   - nil and any other error for a genuine failure
//
// Gated and insufficient-data symbols produce no decision.
func (e *Engine) Evaluate(ctx context.Context, snapshot *models.MarketSnapshot, traceID string) (*models.SignalDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("%w: snapshot for %q: %v", models.ErrAPIRequest, snapshot.Symbol, err)
	}

	if reason, ok := SnapshotGate(e.strategy, snapshot); !ok {
		return nil, &GateError{Symbol: snapshot.Symbol, Reason: reason}
	}

	indicators, err := indicator.Compute(snapshot.Candles, e.strategy.Indicators, inferResolution(snapshot.Candles))
	if err != nil {
		return nil, err
	}

	flow := AnalyzeTradeFlow(snapshot.Trades, e.strategy.TradeFlow.InstitutionalTradeThreshold)
	depth := AnalyzeDepth(&snapshot.Book)

	ev := &Evaluation{
		Snapshot:   snapshot,
		Indicators: indicators,
		Flow:       flow,
		Depth:      depth,
		Strategy:   e.strategy,
	}
	results := e.banks.Evaluate(ev)

	strength := e.strategy.Weights.Technical*results[0].Ratio() +
		e.strategy.Weights.TradeFlow*results[1].Ratio() +
		e.strategy.Weights.MarketDepth*results[2].Ratio()

	decision := &models.SignalDecision{
		ID:         uuid.NewString(),
		Symbol:     snapshot.Symbol,
		Sector:     snapshot.Sector,
		Timestamp:  time.Now().UTC(),
		Price:      snapshot.LastPrice,
		Type:       models.SignalNeutral,
		Strength:   strength,
		Conditions: results,
		Indicators: indicators,
		Flow:       &flow,
		Depth:      &depth,
		MarketCap:  snapshot.MarketCap,
		TraceID:    traceID,
	}

	if reason := e.rejectionReason(results, strength); reason != "" {
		decision.Reason = reason
		return decision, nil
	}

	risk, err := ComputeRisk(e.strategy, snapshot.LastPrice, indicators.ATR, indicators.StructuralLow, e.sizer.PositionSize(snapshot))
	if err != nil {
		decision.Reason = "invalid risk levels"
		return decision, nil
	}

	decision.Accepted = true
	decision.Risk = risk
	decision.Type = models.SignalBuy
	if strength >= e.strategy.StrongSignalStrength {
		decision.Type = models.SignalStrongBuy
	}
	return decision, nil
}

// rejectionReason returns why the signal is rejected, or "" when every
// acceptance requirement holds. All category minimums and the strength
// floor must pass together; no metric can compensate for another.
func (e *Engine) rejectionReason(results []models.ConditionResult, strength float64) string {
	var failures []string
	mins := []int{e.strategy.MinTechConditions, e.strategy.MinFlowConditions, e.strategy.MinDepthConditions}
	for i, result := range results {
		if result.Count() < mins[i] {
			failures = append(failures, fmt.Sprintf("%s %d/%d below min %d",
				result.Category, result.Count(), result.BankSize, mins[i]))
		}
	}
	if strength < e.strategy.MinSignalStrength {
		failures = append(failures, fmt.Sprintf("strength %.2f below min %.2f",
			strength, e.strategy.MinSignalStrength))
	}
	return strings.Join(failures, "; ")
}

// inferResolution derives the bar resolution from consecutive candle
// timestamps, defaulting to one minute for degenerate series.
func inferResolution(candles []models.Candle) time.Duration {
	if len(candles) >= 2 {
		if d := candles[1].Timestamp.Sub(candles[0].Timestamp); d > 0 {
			return d
		}
	}
	return time.Minute
}
