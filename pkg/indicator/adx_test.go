package indicator

import (
	"math"
	"testing"
)

func TestNewADX(t *testing.T) {
	adx, err := NewADX(14)
	if err != nil {
		t.Fatalf("NewADX(14) failed: %v", err)
	}
	if adx.Name() != "adx_14" {
		t.Errorf("Name() = %q, want adx_14", adx.Name())
	}
	if adx.WindowSize() != 28 {
		t.Errorf("WindowSize() = %d, want 28", adx.WindowSize())
	}

	if _, err := NewADX(1); err == nil {
		t.Error("expected error for period < 2")
	}
}

// A constant +1 climb: every change has +DM=1, -DM=0, TR=1.5, so
// +DI=66.66, -DI=0, DX=100 and ADX settles at exactly 100.
func TestADX_StrongUptrend(t *testing.T) {
	adx, _ := NewADX(2)

	high, low := 10.0, 9.0
	for i := 0; i < 6; i++ {
		h := high + float64(i)
		l := low + float64(i)
		v, err := adx.Update(ohlcCandle(i, h, l, l+0.5))
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if i+1 < adx.WindowSize() && v != 0 {
			t.Errorf("Update #%d = %v, want 0 during warm-up", i, v)
		}
	}

	if !adx.IsReady() {
		t.Fatal("ADX not ready after 6 candles with period 2")
	}

	v, err := adx.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if math.Abs(v-100.0) > 1e-9 {
		t.Errorf("ADX = %v for a one-directional climb, want 100", v)
	}
	if adx.PlusDI() <= adx.MinusDI() {
		t.Errorf("+DI (%v) should exceed -DI (%v) in an uptrend", adx.PlusDI(), adx.MinusDI())
	}
	if math.Abs(adx.MinusDI()) > 1e-9 {
		t.Errorf("-DI = %v, want 0 with no down moves", adx.MinusDI())
	}
}

// A dead-flat tape has zero directional movement and zero true range;
// every ratio guards to 0 rather than NaN.
func TestADX_FlatSeries(t *testing.T) {
	adx, _ := NewADX(2)

	for i := 0; i < 8; i++ {
		if _, err := adx.Update(ohlcCandle(i, 10.0, 10.0, 10.0)); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	v, err := adx.Value()
	if err != nil {
		t.Fatalf("Value() failed: %v", err)
	}
	if v != 0 {
		t.Errorf("ADX = %v on a flat tape, want 0", v)
	}
	if adx.PlusDI() != 0 || adx.MinusDI() != 0 {
		t.Errorf("DI = %v/%v on a flat tape, want 0/0", adx.PlusDI(), adx.MinusDI())
	}
}

func TestADX_WarmUp(t *testing.T) {
	adx, _ := NewADX(3)

	for i := 0; i < adx.WindowSize()-1; i++ {
		adx.Update(ohlcCandle(i, 10.0+float64(i), 9.0+float64(i), 9.5+float64(i)))
		if adx.IsReady() {
			t.Fatalf("IsReady() true after %d candles, want %d", i+1, adx.WindowSize())
		}
	}
	if _, err := adx.Value(); err == nil {
		t.Error("Value() should error during warm-up")
	}

	adx.Update(ohlcCandle(adx.WindowSize(), 30.0, 29.0, 29.5))
	if !adx.IsReady() {
		t.Errorf("IsReady() false after %d candles", adx.WindowSize())
	}
}

func TestADX_Reset(t *testing.T) {
	adx, _ := NewADX(2)
	for i := 0; i < 6; i++ {
		adx.Update(ohlcCandle(i, 10.0+float64(i), 9.0+float64(i), 9.5+float64(i)))
	}
	adx.Reset()
	if adx.IsReady() || adx.CandlesProcessed() != 0 {
		t.Error("Reset did not clear state")
	}
	if adx.Name() != "adx_2" {
		t.Errorf("Reset lost the name: %q", adx.Name())
	}
}
