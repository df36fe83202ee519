package indicator

import (
	"fmt"
	"math"

	"github.com/tradeworks/equity-screener/internal/models"
)

// RSI calculates the Relative Strength Index
// RSI = 100 - (100 / (1 + RS))
// where RS = Average Gain / Average Loss, Wilder-smoothed over the period
type RSI struct {
	period    int
	name      string
	prevClose float64
	sumGain   float64 // Warm-up accumulator
	sumLoss   float64 // Warm-up accumulator
	avgGain   float64 // Wilder-smoothed average gain
	avgLoss   float64 // Wilder-smoothed average loss
	ready     bool
	processed int
}

// NewRSI creates a new RSI calculator with the specified period (typically 14)
func NewRSI(period int) (*RSI, error) {
	if period < 2 {
		return nil, fmt.Errorf("RSI period must be at least 2, got %d", period)
	}

	return &RSI{
		period: period,
		name:   fmt.Sprintf("rsi_%d", period),
	}, nil
}

// Name returns the indicator name
func (r *RSI) Name() string {
	return r.name
}

// Update processes the next candle and updates the RSI calculation
func (r *RSI) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	// First candle only seeds the previous close
	if r.processed == 0 {
		r.prevClose = candle.Close
		r.processed++
		return 0, nil
	}

	change := candle.Close - r.prevClose
	r.prevClose = candle.Close
	r.processed++

	var gain, loss float64
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	changes := r.processed - 1
	switch {
	case changes < r.period:
		// Still accumulating the first simple average
		r.sumGain += gain
		r.sumLoss += loss
		return 0, nil
	case changes == r.period:
		r.sumGain += gain
		r.sumLoss += loss
		r.avgGain = r.sumGain / float64(r.period)
		r.avgLoss = r.sumLoss / float64(r.period)
		r.ready = true
	default:
		// Wilder's smoothing: New Avg = ((Old Avg * (Period - 1)) + New Value) / Period
		r.avgGain = ((r.avgGain * float64(r.period-1)) + gain) / float64(r.period)
		r.avgLoss = ((r.avgLoss * float64(r.period-1)) + loss) / float64(r.period)
	}

	return r.calculateRSI(), nil
}

// calculateRSI computes the RSI value from the smoothed averages
func (r *RSI) calculateRSI() float64 {
	if r.avgLoss == 0 {
		return 100.0 // All gains, no losses
	}

	rs := r.avgGain / r.avgLoss
	rsi := 100.0 - (100.0 / (1.0 + rs))

	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		return 50.0 // Neutral fallback
	}

	return math.Max(0.0, math.Min(100.0, rsi))
}

// Value returns the current RSI value
func (r *RSI) Value() (float64, error) {
	if !r.ready {
		return 0, fmt.Errorf("RSI not ready: need at least %d candles", r.period+1)
	}
	return r.calculateRSI(), nil
}

// Reset clears the RSI state
func (r *RSI) Reset() {
	r.prevClose = 0
	r.sumGain = 0
	r.sumLoss = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.ready = false
	r.processed = 0
}

// IsReady returns true if the RSI has consumed its warm-up window
func (r *RSI) IsReady() bool {
	return r.ready
}

// WindowSize returns the number of candles required (period + 1 for the first change)
func (r *RSI) WindowSize() int {
	return r.period + 1
}

// CandlesProcessed returns the number of candles processed
func (r *RSI) CandlesProcessed() int {
	return r.processed
}
