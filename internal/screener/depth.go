package screener

import (
	"github.com/tradeworks/equity-screener/internal/models"
)

// AnalyzeDepth aggregates the visible order book into depth metrics.
// An empty book yields zero metrics, which no depth condition accepts.
func AnalyzeDepth(book *models.OrderBook) models.DepthMetrics {
	var m models.DepthMetrics
	var maxLevel float64

	for _, level := range book.Bids {
		m.BidVolume += level.Volume
		if level.Volume > maxLevel {
			maxLevel = level.Volume
		}
	}
	for _, level := range book.Asks {
		m.AskVolume += level.Volume
		if level.Volume > maxLevel {
			maxLevel = level.Volume
		}
	}

	m.BestBid = book.BestBid()
	m.BestAsk = book.BestAsk()
	m.SpreadPct = book.SpreadPct()
	m.LevelCount = len(book.Bids) + len(book.Asks)

	total := m.BidVolume + m.AskVolume
	if total > 0 {
		m.MaxLevelShare = maxLevel / total
	}

	return m
}
