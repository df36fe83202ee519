package indicator

import (
	"fmt"

	"github.com/tradeworks/equity-screener/internal/models"
)

// VWAP calculates the Volume Weighted Average Price over the fed series
// VWAP = Sum(TypicalPrice * Volume) / Sum(Volume)
// TypicalPrice = (high + low + close) / 3
type VWAP struct {
	name      string
	sumPV     float64
	sumVolume float64
	ready     bool
	processed int
}

// NewVWAP creates a new VWAP calculator
func NewVWAP() *VWAP {
	return &VWAP{name: "vwap"}
}

// Name returns the indicator name
func (v *VWAP) Name() string {
	return v.name
}

// Update processes the next candle and updates the VWAP
func (v *VWAP) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	typical := (candle.High + candle.Low + candle.Close) / 3.0
	v.sumPV += typical * candle.Volume
	v.sumVolume += candle.Volume
	v.processed++

	if v.sumVolume > 0 {
		v.ready = true
		return v.sumPV / v.sumVolume, nil
	}

	// Zero-volume series so far; fall back to the typical price
	return typical, nil
}

// Value returns the current VWAP value
func (v *VWAP) Value() (float64, error) {
	if !v.ready {
		return 0, fmt.Errorf("VWAP not ready: no volume seen yet")
	}
	return v.sumPV / v.sumVolume, nil
}

// Reset clears the VWAP state
func (v *VWAP) Reset() {
	v.sumPV = 0
	v.sumVolume = 0
	v.ready = false
	v.processed = 0
}

// IsReady returns true once a candle with volume has been processed
func (v *VWAP) IsReady() bool {
	return v.ready
}

// WindowSize returns 1 (VWAP accumulates from the first candle)
func (v *VWAP) WindowSize() int {
	return 1
}

// CandlesProcessed returns the number of candles processed
func (v *VWAP) CandlesProcessed() int {
	return v.processed
}
