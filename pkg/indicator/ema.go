package indicator

import (
	"fmt"
	"math"

	"github.com/tradeworks/equity-screener/internal/models"
)

// EMA calculates the Exponential Moving Average
// EMA = (Price - Previous EMA) * Multiplier + Previous EMA
// Multiplier = 2 / (Period + 1); the first value seeds the average
type EMA struct {
	period     int
	name       string
	multiplier float64
	value      float64
	ready      bool
	processed  int
}

// NewEMA creates a new EMA calculator with the specified period
func NewEMA(period int) (*EMA, error) {
	if period < 1 {
		return nil, fmt.Errorf("EMA period must be at least 1, got %d", period)
	}

	return &EMA{
		period:     period,
		name:       fmt.Sprintf("ema_%d", period),
		multiplier: 2.0 / float64(period+1),
	}, nil
}

// Name returns the indicator name
func (e *EMA) Name() string {
	return e.name
}

// Update processes the next candle close and updates the EMA
func (e *EMA) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}
	return e.UpdateValue(candle.Close), nil
}

// UpdateValue feeds a raw value into the average. This is the path used
// when an EMA smooths another indicator's output (e.g. the MACD signal
// line) rather than candle closes.
func (e *EMA) UpdateValue(price float64) float64 {
	if !e.ready {
		e.value = price
		e.ready = true
		e.processed++
		return e.value
	}

	e.value = (price-e.value)*e.multiplier + e.value
	e.processed++

	if math.IsNaN(e.value) || math.IsInf(e.value, 0) {
		e.value = price
	}

	return e.value
}

// Value returns the current EMA value
func (e *EMA) Value() (float64, error) {
	if !e.ready {
		return 0, fmt.Errorf("EMA not ready: need at least 1 candle")
	}
	return e.value, nil
}

// Reset clears the EMA state
func (e *EMA) Reset() {
	e.value = 0
	e.ready = false
	e.processed = 0
}

// IsReady returns true if the EMA has seen at least one value
func (e *EMA) IsReady() bool {
	return e.ready
}

// WindowSize returns 1 (EMA seeds from the first value)
func (e *EMA) WindowSize() int {
	return 1
}

// CandlesProcessed returns the number of values processed
func (e *EMA) CandlesProcessed() int {
	return e.processed
}
