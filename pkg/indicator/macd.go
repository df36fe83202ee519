package indicator

import (
	"fmt"

	"github.com/tradeworks/equity-screener/internal/models"
)

// MACD calculates Moving Average Convergence Divergence
// MACD = EMA(fast) - EMA(slow) of closes
// Signal = EMA(signalPeriod) of the MACD line
// Histogram = MACD - Signal
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
	name         string
	fast         *EMA
	slow         *EMA
	signal       *EMA
	value        float64
	ready        bool
	processed    int
}

// NewMACD creates a new MACD calculator (typically 12/26/9)
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod < 1 || slowPeriod < 1 || signalPeriod < 1 {
		return nil, fmt.Errorf("MACD periods must be at least 1, got %d/%d/%d",
			fastPeriod, slowPeriod, signalPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("MACD fast period must be shorter than slow, got %d/%d",
			fastPeriod, slowPeriod)
	}

	fast, _ := NewEMA(fastPeriod)
	slow, _ := NewEMA(slowPeriod)
	signal, _ := NewEMA(signalPeriod)

	return &MACD{
		fastPeriod:   fastPeriod,
		slowPeriod:   slowPeriod,
		signalPeriod: signalPeriod,
		name:         fmt.Sprintf("macd_%d_%d_%d", fastPeriod, slowPeriod, signalPeriod),
		fast:         fast,
		slow:         slow,
		signal:       signal,
	}, nil
}

// Name returns the indicator name
func (m *MACD) Name() string {
	return m.name
}

// Update processes the next candle and updates the MACD line, signal and histogram
func (m *MACD) Update(candle *models.Candle) (float64, error) {
	if candle == nil {
		return 0, fmt.Errorf("candle cannot be nil")
	}

	fast := m.fast.UpdateValue(candle.Close)
	slow := m.slow.UpdateValue(candle.Close)
	m.value = fast - slow
	m.signal.UpdateValue(m.value)
	m.processed++

	if m.processed >= m.WindowSize() {
		m.ready = true
	}
	if !m.ready {
		return 0, nil
	}
	return m.value, nil
}

// Value returns the current MACD line value
func (m *MACD) Value() (float64, error) {
	if !m.ready {
		return 0, fmt.Errorf("MACD not ready: need at least %d candles", m.WindowSize())
	}
	return m.value, nil
}

// Signal returns the current signal line value
func (m *MACD) Signal() float64 {
	v, _ := m.signal.Value()
	return v
}

// Histogram returns MACD - Signal
func (m *MACD) Histogram() float64 {
	return m.value - m.Signal()
}

// Reset clears the MACD state
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.value = 0
	m.ready = false
	m.processed = 0
}

// IsReady returns true if the MACD has consumed its warm-up window
func (m *MACD) IsReady() bool {
	return m.ready
}

// WindowSize returns the number of candles before the signal line has
// settled: the slow EMA span plus the signal span over the MACD series.
func (m *MACD) WindowSize() int {
	return m.slowPeriod + m.signalPeriod
}

// CandlesProcessed returns the number of candles processed
func (m *MACD) CandlesProcessed() int {
	return m.processed
}
