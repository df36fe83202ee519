package screener

import (
	"github.com/tradeworks/equity-screener/internal/models"
)

// AnalyzeTradeFlow aggregates the recent trade tape into flow metrics.
// Pressure ratios use only sided trades; trades with an unknown side
// still count toward total and institutional value. An empty tape yields
// zero metrics, which no flow condition accepts.
func AnalyzeTradeFlow(trades []models.Trade, institutionalThreshold float64) models.FlowMetrics {
	var m models.FlowMetrics
	m.TradeCount = len(trades)
	if len(trades) == 0 {
		return m
	}

	for i := range trades {
		t := &trades[i]
		notional := t.Notional()
		m.TotalValue += notional
		if notional >= institutionalThreshold {
			m.InstitutionalValue += notional
		}
		switch t.Side {
		case models.TradeSideBuy:
			m.BuyVolume += t.Volume
		case models.TradeSideSell:
			m.SellVolume += t.Volume
		}
	}

	sided := m.BuyVolume + m.SellVolume
	if sided > 0 {
		m.BuyPressure = m.BuyVolume / sided
		m.SellPressure = m.SellVolume / sided
	}
	if m.TotalValue > 0 {
		m.InstitutionalRatio = m.InstitutionalValue / m.TotalValue
	}

	// Net price move across the tape, relative to its start.
	first := trades[0].Price
	last := trades[len(trades)-1].Price
	if first > 0 {
		m.PriceImpact = (last - first) / first
	}

	return m
}
