package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStrategyFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadStrategyDefaults(t *testing.T) {
	path := writeStrategyFile(t, `{}`)

	strategy, err := LoadStrategy(path)
	require.NoError(t, err)

	assert.Equal(t, 0.7, strategy.MinSignalStrength)
	assert.Equal(t, 4, strategy.MinTechConditions)
	assert.Equal(t, 2.0, strategy.StopLossATRMultiplier)
	assert.Equal(t, 5.0, strategy.TakeProfitATRMultiplier)
	assert.Equal(t, 20, strategy.StructuralStopLookback)
	assert.Equal(t, 20, strategy.Indicators.StructuralLookback)
	assert.Equal(t, 14, strategy.Indicators.RSIPeriod)

	// Weights are normalized to sum to 1.
	assert.InDelta(t, 1.0, strategy.Weights.Sum(), 1e-12)
	assert.InDelta(t, 4.0/7.0, strategy.Weights.Technical, 1e-12)
}

func TestLoadStrategyOverrides(t *testing.T) {
	path := writeStrategyFile(t, `{
		"min_price": 2.5,
		"max_price": 80,
		"blacklist_symbols": ["comi", " hrho ", "COMI"],
		"min_signal_strength": 0.6,
		"strong_signal_strength": 0.8,
		"structural_stop_lookback": 30,
		"signal_weights": {"technical": 2, "trade_flow": 1, "market_depth": 1},
		"indicator_periods": {"rsi_period": 21}
	}`)

	strategy, err := LoadStrategy(path)
	require.NoError(t, err)

	assert.Equal(t, 2.5, strategy.MinPrice)
	assert.Equal(t, []string{"COMI", "HRHO"}, strategy.BlacklistSymbols)
	assert.True(t, strategy.IsBlacklisted("comi"))
	assert.True(t, strategy.IsBlacklisted(" HRHO "))
	assert.False(t, strategy.IsBlacklisted("SWDY"))

	assert.InDelta(t, 0.5, strategy.Weights.Technical, 1e-12)
	assert.InDelta(t, 0.25, strategy.Weights.TradeFlow, 1e-12)

	// Partial indicator_periods keep defaults for omitted fields.
	assert.Equal(t, 21, strategy.Indicators.RSIPeriod)
	assert.Equal(t, 26, strategy.Indicators.MACDSlow)

	// The stop lookback drives the structural low window.
	assert.Equal(t, 30, strategy.Indicators.StructuralLookback)
}

func TestLoadStrategyRejectsUnknownFields(t *testing.T) {
	path := writeStrategyFile(t, `{"min_pricee": 5}`)

	_, err := LoadStrategy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestLoadStrategyMissingFile(t *testing.T) {
	_, err := LoadStrategy(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestStrategyValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StrategyConfig)
	}{
		{"zero min price", func(s *StrategyConfig) { s.MinPrice = 0 }},
		{"inverted price range", func(s *StrategyConfig) { s.MaxPrice = s.MinPrice - 0.5 }},
		{"negative market cap floor", func(s *StrategyConfig) { s.MinMarketCap = -1 }},
		{"zero spread cap", func(s *StrategyConfig) { s.MaxSpreadPct = 0 }},
		{"strength above one", func(s *StrategyConfig) { s.MinSignalStrength = 1.2 }},
		{"strong below min", func(s *StrategyConfig) { s.StrongSignalStrength = s.MinSignalStrength - 0.1 }},
		{"zero tech minimum", func(s *StrategyConfig) { s.MinTechConditions = 0 }},
		{"rsi oversold out of range", func(s *StrategyConfig) { s.Technical.RSIOversold = 100 }},
		{"buy pressure above one", func(s *StrategyConfig) { s.TradeFlow.StrongBuyPressure = 1.5 }},
		{"zero bid ask ratio", func(s *StrategyConfig) { s.Depth.MinBidAskRatio = 0 }},
		{"level concentration above one", func(s *StrategyConfig) { s.Depth.MaxLevelConcentration = 1.01 }},
		{"negative weight", func(s *StrategyConfig) { s.Weights.TradeFlow = -0.2 }},
		{"all weights zero", func(s *StrategyConfig) { s.Weights = SignalWeights{} }},
		{"zero stop multiplier", func(s *StrategyConfig) { s.StopLossATRMultiplier = 0 }},
		{"negative take profit multiplier", func(s *StrategyConfig) { s.TakeProfitATRMultiplier = -1 }},
		{"zero structural lookback", func(s *StrategyConfig) { s.StructuralStopLookback = 0 }},
		{"zero max position", func(s *StrategyConfig) { s.MaxPositionSize = 0 }},
		{"bad indicator period", func(s *StrategyConfig) { s.Indicators.RSIPeriod = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := DefaultStrategy()
			tt.mutate(strategy)
			assert.Error(t, strategy.Validate())
		})
	}
}

func TestStrategyValidateDefaultIsValid(t *testing.T) {
	strategy := DefaultStrategy()
	strategy.Normalize()
	assert.NoError(t, strategy.Validate())
}
