package models

import (
	"testing"
	"time"
)

func TestCandle_Validate(t *testing.T) {
	tests := []struct {
		name    string
		candle  *Candle
		wantErr bool
	}{
		{
			name: "valid candle",
			candle: &Candle{
				Timestamp: time.Now(),
				Open:      15.0,
				High:      15.4,
				Low:       14.8,
				Close:     15.2,
				Volume:    120000,
			},
			wantErr: false,
		},
		{
			name: "zero timestamp",
			candle: &Candle{
				Open:   15.0,
				High:   15.4,
				Low:    14.8,
				Close:  15.2,
				Volume: 120000,
			},
			wantErr: true,
		},
		{
			name: "high below low",
			candle: &Candle{
				Timestamp: time.Now(),
				Open:      15.0,
				High:      14.0,
				Low:       14.8,
				Close:     15.2,
			},
			wantErr: true,
		},
		{
			name: "negative volume",
			candle: &Candle{
				Timestamp: time.Now(),
				Open:      15.0,
				High:      15.4,
				Low:       14.8,
				Close:     15.2,
				Volume:    -1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.candle.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Candle.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOrderBook_SpreadPct(t *testing.T) {
	tests := []struct {
		name string
		book OrderBook
		want float64
	}{
		{
			name: "normal book",
			book: OrderBook{
				Bids: []DepthLevel{{Price: 9.95, Volume: 1000}},
				Asks: []DepthLevel{{Price: 10.05, Volume: 800}},
			},
			want: 0.1 / 10.0 * 100, // (10.05-9.95)/10.00 * 100
		},
		{
			name: "empty bid side",
			book: OrderBook{
				Asks: []DepthLevel{{Price: 10.05, Volume: 800}},
			},
			want: 0,
		},
		{
			name: "empty book",
			book: OrderBook{},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.book.SpreadPct()
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("SpreadPct() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrade_Notional(t *testing.T) {
	withValue := &Trade{Price: 10, Volume: 500, Value: 6000}
	if got := withValue.Notional(); got != 6000 {
		t.Errorf("Notional() = %v, want feed-supplied 6000", got)
	}

	derived := &Trade{Price: 10, Volume: 500}
	if got := derived.Notional(); got != 5000 {
		t.Errorf("Notional() = %v, want derived 5000", got)
	}
}

func TestRiskLevels_Validate(t *testing.T) {
	tests := []struct {
		name    string
		risk    *RiskLevels
		wantErr bool
	}{
		{
			name:    "valid levels",
			risk:    &RiskLevels{Entry: 10, StopLoss: 9, TakeProfit: 12.5, PositionSize: 5000},
			wantErr: false,
		},
		{
			name:    "stop above entry",
			risk:    &RiskLevels{Entry: 10, StopLoss: 10.5, TakeProfit: 12.5, PositionSize: 5000},
			wantErr: true,
		},
		{
			name:    "take profit below entry",
			risk:    &RiskLevels{Entry: 10, StopLoss: 9, TakeProfit: 9.5, PositionSize: 5000},
			wantErr: true,
		},
		{
			name:    "zero entry",
			risk:    &RiskLevels{Entry: 0, StopLoss: -1, TakeProfit: 1, PositionSize: 5000},
			wantErr: true,
		},
		{
			name:    "zero position size",
			risk:    &RiskLevels{Entry: 10, StopLoss: 9, TakeProfit: 12.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.risk.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("RiskLevels.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRiskLevels_RewardRatio(t *testing.T) {
	r := &RiskLevels{Entry: 10, StopLoss: 9, TakeProfit: 12.5, PositionSize: 1}
	if got := r.RewardRatio(); got != 2.5 {
		t.Errorf("RewardRatio() = %v, want 2.5", got)
	}
}

func TestSignalDecision_Validate(t *testing.T) {
	base := func() *SignalDecision {
		return &SignalDecision{
			ID:        "d-1",
			Symbol:    "COMI",
			Timestamp: time.Now(),
			Price:     82.5,
			Type:      SignalBuy,
			Strength:  0.74,
			Accepted:  true,
			Risk:      &RiskLevels{Entry: 82.5, StopLoss: 80.1, TakeProfit: 88.2, PositionSize: 10000},
		}
	}

	t.Run("valid accepted decision", func(t *testing.T) {
		if err := base().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("accepted without risk", func(t *testing.T) {
		d := base()
		d.Risk = nil
		if err := d.Validate(); err != ErrMissingRisk {
			t.Errorf("Validate() error = %v, want ErrMissingRisk", err)
		}
	})

	t.Run("rejected with risk", func(t *testing.T) {
		d := base()
		d.Accepted = false
		if err := d.Validate(); err != ErrUnexpectedRisk {
			t.Errorf("Validate() error = %v, want ErrUnexpectedRisk", err)
		}
	})

	t.Run("strength out of range", func(t *testing.T) {
		d := base()
		d.Strength = 1.2
		if err := d.Validate(); err != ErrInvalidStrength {
			t.Errorf("Validate() error = %v, want ErrInvalidStrength", err)
		}
	})
}

func TestConditionResult_Ratio(t *testing.T) {
	r := &ConditionResult{
		Category: CategoryTechnical,
		Passed:   []string{"rsi_oversold", "adx_trending", "macd_above_signal"},
		BankSize: 6,
	}
	if got := r.Ratio(); got != 0.5 {
		t.Errorf("Ratio() = %v, want 0.5", got)
	}
	if got := r.Count(); got != 3 {
		t.Errorf("Count() = %v, want 3", got)
	}

	empty := &ConditionResult{Category: CategoryDepth}
	if got := empty.Ratio(); got != 0 {
		t.Errorf("Ratio() on empty bank = %v, want 0", got)
	}
}

func TestSignalDecision_CategoryCount(t *testing.T) {
	d := &SignalDecision{
		Conditions: []ConditionResult{
			{Category: CategoryTechnical, Passed: []string{"a", "b"}, BankSize: 6},
			{Category: CategoryFlow, Passed: []string{"c"}, BankSize: 4},
		},
	}
	if got := d.CategoryCount(CategoryTechnical); got != 2 {
		t.Errorf("CategoryCount(technical) = %v, want 2", got)
	}
	if got := d.CategoryCount(CategoryDepth); got != -1 {
		t.Errorf("CategoryCount(depth) = %v, want -1 for unevaluated", got)
	}
}
