package indicator

import (
	"fmt"
	"time"

	"github.com/tradeworks/equity-screener/internal/models"
)

// Params configures the indicator periods for one strategy. The zero
// value is not usable; start from DefaultParams.
type Params struct {
	RSIPeriod       int     `json:"rsi_period"`
	ADXPeriod       int     `json:"adx_period"`
	ATRPeriod       int     `json:"atr_period"`
	MACDFast        int     `json:"macd_fast"`
	MACDSlow        int     `json:"macd_slow"`
	MACDSignal      int     `json:"macd_signal"`
	BollingerPeriod int     `json:"bollinger_period"`
	BollingerSigma  float64 `json:"bollinger_sigma"`
	StochKPeriod    int     `json:"stoch_k_period"`
	StochDPeriod    int     `json:"stoch_d_period"`

	// StructuralLookback is set by the strategy loader, not the
	// indicator_periods block.
	StructuralLookback int `json:"-"`
}

// DefaultParams returns the standard periods
func DefaultParams() Params {
	return Params{
		RSIPeriod:          14,
		ADXPeriod:          14,
		ATRPeriod:          14,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		BollingerPeriod:    20,
		BollingerSigma:     2.0,
		StochKPeriod:       14,
		StochDPeriod:       3,
		StructuralLookback: 20,
	}
}

// Validate checks that every period is usable
func (p Params) Validate() error {
	if p.RSIPeriod < 2 {
		return fmt.Errorf("rsi_period must be at least 2, got %d", p.RSIPeriod)
	}
	if p.ADXPeriod < 2 {
		return fmt.Errorf("adx_period must be at least 2, got %d", p.ADXPeriod)
	}
	if p.ATRPeriod < 1 {
		return fmt.Errorf("atr_period must be at least 1, got %d", p.ATRPeriod)
	}
	if p.MACDFast < 1 || p.MACDSlow < 1 || p.MACDSignal < 1 {
		return fmt.Errorf("macd periods must be at least 1, got %d/%d/%d",
			p.MACDFast, p.MACDSlow, p.MACDSignal)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd_fast must be shorter than macd_slow, got %d/%d",
			p.MACDFast, p.MACDSlow)
	}
	if p.BollingerPeriod < 2 {
		return fmt.Errorf("bollinger_period must be at least 2, got %d", p.BollingerPeriod)
	}
	if p.BollingerSigma <= 0 {
		return fmt.Errorf("bollinger_sigma must be positive, got %v", p.BollingerSigma)
	}
	if p.StochKPeriod < 1 || p.StochDPeriod < 1 {
		return fmt.Errorf("stochastic periods must be at least 1, got %d/%d",
			p.StochKPeriod, p.StochDPeriod)
	}
	if p.StructuralLookback < 1 {
		return fmt.Errorf("structural_lookback must be at least 1, got %d", p.StructuralLookback)
	}
	return nil
}

// RequiredBars returns the longest warm-up window across all indicators.
// Series shorter than this are not evaluable.
func (p Params) RequiredBars() int {
	required := p.RSIPeriod + 1
	for _, n := range []int{
		2 * p.ADXPeriod,
		p.ATRPeriod + 1,
		p.MACDSlow + p.MACDSignal,
		p.BollingerPeriod,
		p.StochKPeriod + p.StochDPeriod - 1,
		p.StructuralLookback,
	} {
		if n > required {
			required = n
		}
	}
	return required
}

// Compute derives the full IndicatorSet for one snapshot's OHLCV series
// (ordered oldest to newest). Returns models.ErrInsufficientData when
// the series is shorter than the longest warm-up window; callers treat
// that as "not evaluable", not a failure.
func Compute(candles []models.Candle, params Params, resolution time.Duration) (*models.IndicatorSet, error) {
	if len(candles) < params.RequiredBars() {
		return nil, models.ErrInsufficientData
	}

	rsi, err := NewRSI(params.RSIPeriod)
	if err != nil {
		return nil, err
	}
	adx, err := NewADX(params.ADXPeriod)
	if err != nil {
		return nil, err
	}
	atr, err := NewATR(params.ATRPeriod)
	if err != nil {
		return nil, err
	}
	macd, err := NewMACD(params.MACDFast, params.MACDSlow, params.MACDSignal)
	if err != nil {
		return nil, err
	}
	vwap := NewVWAP()

	for i := range candles {
		c := &candles[i]
		if _, err := rsi.Update(c); err != nil {
			return nil, err
		}
		if _, err := adx.Update(c); err != nil {
			return nil, err
		}
		if _, err := atr.Update(c); err != nil {
			return nil, err
		}
		if _, err := macd.Update(c); err != nil {
			return nil, err
		}
		if _, err := vwap.Update(c); err != nil {
			return nil, err
		}
	}

	rsiVal, err := rsi.Value()
	if err != nil {
		return nil, models.ErrInsufficientData
	}
	adxVal, err := adx.Value()
	if err != nil {
		return nil, models.ErrInsufficientData
	}
	atrVal, err := atr.Value()
	if err != nil {
		return nil, models.ErrInsufficientData
	}
	macdVal, err := macd.Value()
	if err != nil {
		return nil, models.ErrInsufficientData
	}
	vwapVal, _ := vwap.Value()

	series, err := NewSeries(candles, resolution)
	if err != nil {
		return nil, err
	}
	bands := series.Bollinger(params.BollingerPeriod, params.BollingerSigma)
	stoch := series.Stochastic(params.StochKPeriod, params.StochDPeriod)

	last := candles[len(candles)-1]

	return &models.IndicatorSet{
		RSI:           rsiVal,
		ADX:           adxVal,
		ATR:           atrVal,
		MACD:          macdVal,
		MACDSignal:    macd.Signal(),
		MACDHist:      macd.Histogram(),
		BBUpper:       bands.Upper,
		BBMiddle:      bands.Middle,
		BBLower:       bands.Lower,
		StochK:        stoch.K,
		StochD:        stoch.D,
		VWAP:          vwapVal,
		StructuralLow: series.StructuralLow(params.StructuralLookback),
		Close:         last.Close,
	}, nil
}
