package indicator

import (
	"github.com/tradeworks/equity-screener/internal/models"
)

// Calculator is the interface for computing technical indicators.
// Calculators are fed the OHLCV series oldest to newest, one candle at
// a time, and are never shared between evaluation passes.
type Calculator interface {
	// Name returns the unique name of this indicator (e.g., "rsi_14", "atr_14")
	Name() string

	// Update processes the next candle and updates the indicator state.
	// Returns the new indicator value, or 0 while warming up.
	Update(candle *models.Candle) (float64, error)

	// Value returns the current indicator value.
	// Returns 0 and an error while the indicator is warming up.
	Value() (float64, error)

	// Reset clears the indicator state
	Reset()

	// IsReady returns true once the warm-up window has been consumed
	IsReady() bool
}

// WindowedCalculator extends Calculator for indicators with a fixed warm-up window
type WindowedCalculator interface {
	Calculator

	// WindowSize returns the number of candles required before Value is valid
	WindowSize() int

	// CandlesProcessed returns the number of candles processed so far
	CandlesProcessed() int
}
