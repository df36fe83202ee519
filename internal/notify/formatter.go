package notify

import (
	"fmt"
	"strings"

	"github.com/tradeworks/equity-screener/internal/models"
)

// categoryOrder fixes the display order of condition categories:
// technical first, then flow, then depth.
var categoryOrder = []struct {
	cat   models.Category
	label string
}{
	{models.CategoryTechnical, "Technical"},
	{models.CategoryFlow, "Trade Flow"},
	{models.CategoryDepth, "Market Depth"},
}

// FormatSignalMessage renders an accepted decision as a Telegram
// Markdown alert: heading, quote facts, indicator readings, per-category
// condition scores and the exit strategy.
func FormatSignalMessage(d *models.SignalDecision) string {
	var b strings.Builder

	heading := strings.ReplaceAll(string(d.Type), "_", " ")
	fmt.Fprintf(&b, "🚀 *%s SIGNAL*\n", heading)
	fmt.Fprintf(&b, "*%s*\n\n", d.Symbol)

	fmt.Fprintf(&b, "💰 *Price:* `%.2f`\n", d.Price)
	fmt.Fprintf(&b, "🏢 *Market Cap:* `%s`\n", FormatMarketCap(d.MarketCap))
	if d.Sector != "" {
		fmt.Fprintf(&b, "🏭 *Sector:* %s\n", d.Sector)
	}
	fmt.Fprintf(&b, "💪 *Strength:* `%.2f`\n\n", d.Strength)

	if d.Indicators != nil {
		b.WriteString("📊 *Technical Indicators:*\n")
		fmt.Fprintf(&b, "• RSI(14): `%.1f`\n", d.Indicators.RSI)
		fmt.Fprintf(&b, "• MACD: `%.3f`\n", d.Indicators.MACD)
		fmt.Fprintf(&b, "• ATR: `%.2f`\n\n", d.Indicators.ATR)
	}

	b.WriteString("🎯 *Signal Strength:*\n")
	for _, entry := range categoryOrder {
		for i := range d.Conditions {
			if d.Conditions[i].Category == entry.cat {
				fmt.Fprintf(&b, "• %s: `%d/%d`\n",
					entry.label, d.Conditions[i].Count(), d.Conditions[i].BankSize)
			}
		}
	}

	if d.Risk != nil {
		b.WriteString("\n🎯 *Exit Strategy:*\n")
		fmt.Fprintf(&b, "🔴 *Stop-Loss:* `%.2f`\n", d.Risk.StopLoss)
		fmt.Fprintf(&b, "🟢 *Take-Profit:* `%.2f`\n", d.Risk.TakeProfit)
		fmt.Fprintf(&b, "📦 *Position Size:* `%.0f`\n", d.Risk.PositionSize)
		fmt.Fprintf(&b, "📏 *Risk/Reward:* `1:%.1f`", d.Risk.RewardRatio())
	}

	return b.String()
}

// FormatMarketCap renders a market cap for display: billions, millions
// or thousands with two decimals.
func FormatMarketCap(marketCap float64) string {
	if marketCap <= 0 {
		return "N/A"
	}
	switch {
	case marketCap >= 1e9:
		return fmt.Sprintf("%.2fB", marketCap/1e9)
	case marketCap >= 1e6:
		return fmt.Sprintf("%.2fM", marketCap/1e6)
	default:
		return fmt.Sprintf("%.2fK", marketCap/1e3)
	}
}
