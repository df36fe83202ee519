package screener

import (
	"fmt"
	"math"

	"github.com/tradeworks/equity-screener/internal/config"
	"github.com/tradeworks/equity-screener/internal/models"
)

// PositionSizer produces the externally-derived position value for a
// symbol. The risk calculator caps whatever it returns at the strategy's
// max_position_size.
type PositionSizer interface {
	PositionSize(s *models.MarketSnapshot) float64
}

// LiquiditySizer sizes positions as a fixed fraction of the symbol's
// daily traded value, so thin names get proportionally small positions.
type LiquiditySizer struct {
	Fraction float64
}

// NewLiquiditySizer returns the default sizer at 10% of daily traded value.
func NewLiquiditySizer() *LiquiditySizer {
	return &LiquiditySizer{Fraction: 0.10}
}

// PositionSize returns fraction * daily volume * last price.
func (ls *LiquiditySizer) PositionSize(s *models.MarketSnapshot) float64 {
	return ls.Fraction * s.DailyVolume * s.LastPrice
}

// ComputeRisk derives stop loss, take profit and position size for an
// accepted signal:
//
//	stop loss   = entry - ATR*stop_mult, lowered to the structural low
//	              when one exists below that
//	take profit = entry + ATR*tp_mult
//	size        = min(external size, max_position_size)
//
// Any inconsistent result returns ErrInvalidRisk and the decision is
// rejected rather than emitted with broken levels.
func ComputeRisk(strategy *config.StrategyConfig, entry, atr, structuralLow, externalSize float64) (*models.RiskLevels, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("%w: entry %v", models.ErrInvalidRisk, entry)
	}
	if atr <= 0 {
		return nil, fmt.Errorf("%w: atr %v", models.ErrInvalidRisk, atr)
	}

	stop := entry - atr*strategy.StopLossATRMultiplier
	if structuralLow > 0 && structuralLow < stop {
		stop = structuralLow
	}
	take := entry + atr*strategy.TakeProfitATRMultiplier
	size := math.Min(externalSize, strategy.MaxPositionSize)

	levels := &models.RiskLevels{
		Entry:        entry,
		StopLoss:     stop,
		TakeProfit:   take,
		PositionSize: size,
	}
	if stop <= 0 {
		return nil, fmt.Errorf("%w: stop loss %v at entry %v", models.ErrInvalidRisk, stop, entry)
	}
	if err := levels.Validate(); err != nil {
		return nil, fmt.Errorf("%w: entry %v stop %v take %v size %v",
			models.ErrInvalidRisk, entry, stop, take, size)
	}
	return levels, nil
}
