package indicator

import (
	"fmt"
	"math"

	"github.com/tradeworks/equity-screener/internal/models"
)

// ADX calculates the Average Directional Index
// +DM = high - prevHigh when that exceeds both 0 and the down move
// -DM = prevLow - low when that exceeds both 0 and the up move
// +DI / -DI = 100 * Wilder-smoothed DM / Wilder-smoothed TR
// DX = 100 * |+DI - -DI| / (+DI + -DI), ADX = Wilder-smoothed DX
type ADX struct {
	period    int
	name      string
	prevHigh  float64
	prevLow   float64
	prevClose float64

	sumTR      float64 // Warm-up accumulators for the first smoothed values
	sumPlusDM  float64
	sumMinusDM float64
	avgTR      float64
	avgPlusDM  float64
	avgMinusDM float64

	sumDX   float64 // Accumulator for the first ADX average
	dxCount int
	value   float64

	ready     bool
	processed int
}

// NewADX creates a new ADX calculator with the specified period (typically 14)
func NewADX(period int) (*ADX, error) {
	if period < 2 {
		return nil, fmt.Errorf("ADX period must be at least 2, got %d", period)
	}

	return &ADX{
		period: period,
		name:   fmt.Sprintf("adx_%d", period),
	}, nil
}

// Name returns the indicator name
func (a *ADX) Name() string {
	return a.name
}

// Update processes the next candle and updates the ADX
func (a *ADX) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	if a.processed == 0 {
		a.prevHigh = candle.High
		a.prevLow = candle.Low
		a.prevClose = candle.Close
		a.processed++
		return 0, nil
	}

	tr := trueRange(candle, a.prevClose)

	upMove := candle.High - a.prevHigh
	downMove := a.prevLow - candle.Low

	var plusDM, minusDM float64
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	a.prevHigh = candle.High
	a.prevLow = candle.Low
	a.prevClose = candle.Close
	a.processed++

	changes := a.processed - 1
	switch {
	case changes < a.period:
		a.sumTR += tr
		a.sumPlusDM += plusDM
		a.sumMinusDM += minusDM
		return 0, nil
	case changes == a.period:
		a.sumTR += tr
		a.sumPlusDM += plusDM
		a.sumMinusDM += minusDM
		a.avgTR = a.sumTR / float64(a.period)
		a.avgPlusDM = a.sumPlusDM / float64(a.period)
		a.avgMinusDM = a.sumMinusDM / float64(a.period)
	default:
		p := float64(a.period)
		a.avgTR = ((a.avgTR * (p - 1)) + tr) / p
		a.avgPlusDM = ((a.avgPlusDM * (p - 1)) + plusDM) / p
		a.avgMinusDM = ((a.avgMinusDM * (p - 1)) + minusDM) / p
	}

	dx := a.calculateDX()

	switch {
	case a.ready:
		// Wilder's smoothing of DX once the first average exists
		a.value = ((a.value * float64(a.period-1)) + dx) / float64(a.period)
	default:
		a.sumDX += dx
		a.dxCount++
		if a.dxCount >= a.period {
			a.value = a.sumDX / float64(a.period)
			a.ready = true
		}
	}

	if !a.ready {
		return 0, nil
	}
	return a.value, nil
}

// calculateDX computes the directional index from the smoothed values
func (a *ADX) calculateDX() float64 {
	plusDI := a.plusDI()
	minusDI := a.minusDI()

	sum := plusDI + minusDI
	if sum == 0 {
		return 0
	}

	dx := 100.0 * math.Abs(plusDI-minusDI) / sum
	if math.IsNaN(dx) || math.IsInf(dx, 0) {
		return 0
	}
	return dx
}

func (a *ADX) plusDI() float64 {
	if a.avgTR == 0 {
		return 0
	}
	return 100.0 * a.avgPlusDM / a.avgTR
}

func (a *ADX) minusDI() float64 {
	if a.avgTR == 0 {
		return 0
	}
	return 100.0 * a.avgMinusDM / a.avgTR
}

// PlusDI returns the current +DI value
func (a *ADX) PlusDI() float64 {
	return a.plusDI()
}

// MinusDI returns the current -DI value
func (a *ADX) MinusDI() float64 {
	return a.minusDI()
}

// Value returns the current ADX value
func (a *ADX) Value() (float64, error) {
	if !a.ready {
		return 0, fmt.Errorf("ADX not ready: need at least %d candles", a.WindowSize())
	}
	return a.value, nil
}

// Reset clears the ADX state
func (a *ADX) Reset() {
	*a = ADX{period: a.period, name: a.name}
}

// IsReady returns true if the ADX has consumed its warm-up window
func (a *ADX) IsReady() bool {
	return a.ready
}

// WindowSize returns the number of candles required: one seed candle,
// period changes for the first DX, then period-1 more DX values.
func (a *ADX) WindowSize() int {
	return 2 * a.period
}

// CandlesProcessed returns the number of candles processed
func (a *ADX) CandlesProcessed() int {
	return a.processed
}
