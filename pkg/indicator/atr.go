package indicator

import (
	"fmt"
	"math"

	"github.com/tradeworks/equity-screener/internal/models"
)

// ATR calculates the Average True Range
// TR = max(high - low, |high - prevClose|, |low - prevClose|)
// ATR = Wilder-smoothed average of TR over the period
type ATR struct {
	period    int
	name      string
	prevClose float64
	sumTR     float64 // Warm-up accumulator
	value     float64
	ready     bool
	processed int
}

// NewATR creates a new ATR calculator with the specified period (typically 14)
func NewATR(period int) (*ATR, error) {
	if period < 1 {
		return nil, fmt.Errorf("ATR period must be at least 1, got %d", period)
	}

	return &ATR{
		period: period,
		name:   fmt.Sprintf("atr_%d", period),
	}, nil
}

// Name returns the indicator name
func (a *ATR) Name() string {
	return a.name
}

// Update processes the next candle and updates the ATR
func (a *ATR) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	// First candle only seeds the previous close; true range needs it
	if a.processed == 0 {
		a.prevClose = candle.Close
		a.processed++
		return 0, nil
	}

	tr := trueRange(candle, a.prevClose)
	a.prevClose = candle.Close
	a.processed++

	ranges := a.processed - 1
	switch {
	case ranges < a.period:
		a.sumTR += tr
		return 0, nil
	case ranges == a.period:
		a.sumTR += tr
		a.value = a.sumTR / float64(a.period)
		a.ready = true
	default:
		// Wilder's smoothing
		a.value = ((a.value * float64(a.period-1)) + tr) / float64(a.period)
	}

	return a.value, nil
}

// trueRange computes the true range of a candle given the prior close
func trueRange(candle *models.Candle, prevClose float64) float64 {
	hl := candle.High - candle.Low
	hc := math.Abs(candle.High - prevClose)
	lc := math.Abs(candle.Low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

// Value returns the current ATR value
func (a *ATR) Value() (float64, error) {
	if !a.ready {
		return 0, fmt.Errorf("ATR not ready: need at least %d candles", a.period+1)
	}
	return a.value, nil
}

// Reset clears the ATR state
func (a *ATR) Reset() {
	a.prevClose = 0
	a.sumTR = 0
	a.value = 0
	a.ready = false
	a.processed = 0
}

// IsReady returns true if the ATR has consumed its warm-up window
func (a *ATR) IsReady() bool {
	return a.ready
}

// WindowSize returns the number of candles required (period + 1 for the first range)
func (a *ATR) WindowSize() int {
	return a.period + 1
}

// CandlesProcessed returns the number of candles processed
func (a *ATR) CandlesProcessed() int {
	return a.processed
}
