package indicator

import (
	"fmt"
	"math"
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/tradeworks/equity-screener/internal/models"
)

// BollingerBands holds the three band values at the end of a series
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Stochastic holds the oscillator values at the end of a series
type Stochastic struct {
	K float64
	D float64
}

// Series wraps a techan time series built from a candle slice. It backs
// the window-shaped indicators (Bollinger bands, stochastic oscillator,
// structural low) that are cheaper to read off a full series than to
// stream. Callers must ensure the series is long enough for the windows
// they request; values inside the warm-up region are techan's zeros.
type Series struct {
	series *techan.TimeSeries
}

// NewSeries builds a techan series from candles ordered oldest to newest
func NewSeries(candles []models.Candle, resolution time.Duration) (*Series, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("series requires at least one candle")
	}

	ts := techan.NewTimeSeries()
	for i := range candles {
		c := &candles[i]
		candle := techan.NewCandle(techan.NewTimePeriod(c.Timestamp, resolution))
		candle.OpenPrice = big.NewDecimal(c.Open)
		candle.MaxPrice = big.NewDecimal(c.High)
		candle.MinPrice = big.NewDecimal(c.Low)
		candle.ClosePrice = big.NewDecimal(c.Close)
		candle.Volume = big.NewDecimal(c.Volume)
		ts.AddCandle(candle)
	}

	return &Series{series: ts}, nil
}

// Len returns the number of candles in the series
func (s *Series) Len() int {
	return s.series.LastIndex() + 1
}

// Bollinger returns the Bollinger bands over the window with the given sigma
func (s *Series) Bollinger(window int, sigma float64) BollingerBands {
	closes := techan.NewClosePriceIndicator(s.series)
	idx := s.series.LastIndex()

	return BollingerBands{
		Upper:  sanitize(techan.NewBollingerUpperBandIndicator(closes, window, sigma).Calculate(idx).Float(), 0),
		Middle: sanitize(techan.NewSimpleMovingAverage(closes, window).Calculate(idx).Float(), 0),
		Lower:  sanitize(techan.NewBollingerLowerBandIndicator(closes, window, sigma).Calculate(idx).Float(), 0),
	}
}

// Stochastic returns %K over kWindow and %D smoothed over dWindow
func (s *Series) Stochastic(kWindow, dWindow int) Stochastic {
	k := techan.NewFastStochasticIndicator(s.series, kWindow)
	d := techan.NewSlowStochasticIndicator(k, dWindow)
	idx := s.series.LastIndex()

	// A flat window yields a zero range; treat the oscillator as neutral
	return Stochastic{
		K: sanitize(k.Calculate(idx).Float(), 50),
		D: sanitize(d.Calculate(idx).Float(), 50),
	}
}

// StructuralLow returns the lowest low over the trailing lookback candles
func (s *Series) StructuralLow(lookback int) float64 {
	lows := techan.NewLowPriceIndicator(s.series)
	min := techan.NewMinimumValueIndicator(lows, lookback)
	return sanitize(min.Calculate(s.series.LastIndex()).Float(), 0)
}

// sanitize maps NaN/Inf results from zero-range windows to a fallback
func sanitize(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
