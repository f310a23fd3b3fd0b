package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block suitable for pasting into a journal.
func FormatTradeOrg(t TradeRecord) string {
	heading := fmt.Sprintf("** Trade: %s #%d [%s]", t.Symbol, t.ID, t.Status)

	var b strings.Builder
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(":PROPERTIES:\n")
	b.WriteString(fmt.Sprintf(":TRADE_ID: %d\n", t.ID))
	b.WriteString(fmt.Sprintf(":SYMBOL: %s\n", t.Symbol))
	b.WriteString(fmt.Sprintf(":STATUS: %s\n", t.Status))
	b.WriteString(fmt.Sprintf(":SHARES: %s\n", t.PositionSize))
	b.WriteString(fmt.Sprintf(":ENTRY_PRICE: %s\n", t.EntryPrice.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":STOP_PRICE: %s\n", t.StopPrice.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":TARGET_PRICE: %s\n", t.TargetPrice.StringFixed(2)))
	b.WriteString(fmt.Sprintf(":ENTRY_TIME: %s\n", t.EntryTime.UTC().Format(time.RFC3339)))
	if t.ExitPrice.Valid {
		b.WriteString(fmt.Sprintf(":EXIT_PRICE: %s\n", t.ExitPrice.Decimal.StringFixed(2)))
	}
	if t.ExitTime != nil {
		b.WriteString(fmt.Sprintf(":EXIT_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339)))
	}
	if t.ProfitLoss.Valid {
		b.WriteString(fmt.Sprintf(":PROFIT_LOSS: %s\n", t.ProfitLoss.Decimal.StringFixed(2)))
		b.WriteString(fmt.Sprintf(":PROFIT_LOSS_PCT: %s\n", t.ProfitLossPercent.Decimal.StringFixed(2)))
	}
	if t.Confidence.Valid {
		b.WriteString(fmt.Sprintf(":CONFIDENCE: %s\n", t.Confidence.Decimal))
	}
	if t.ParentID != 0 {
		b.WriteString(fmt.Sprintf(":PARENT_ID: %d\n", t.ParentID))
	}
	b.WriteString(fmt.Sprintf(":REASON: %s\n", t.Reason))
	b.WriteString(":END:\n")
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- ")
	b.WriteString(t.Reason)
	b.WriteString("\n\n")
	b.WriteString("*** Notes\n- ")
	b.WriteString(t.Notes)
	b.WriteString("\n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// FormatMetricsOrg renders a metrics summary as an Org table.
func FormatMetricsOrg(m PerformanceMetrics) string {
	var b strings.Builder
	b.WriteString("* Performance\n")
	row := func(k, v string) { b.WriteString(fmt.Sprintf("| %-16s | %12s |\n", k, v)) }
	row("total trades", fmt.Sprint(m.TotalTrades))
	row("open / closed", fmt.Sprintf("%d / %d", m.OpenTrades, m.ClosedTrades))
	row("win rate", fmt.Sprintf("%.1f%%", m.WinRate))
	row("profit factor", m.ProfitFactor.String())
	row("largest win", m.LargestWin.StringFixed(2))
	row("largest loss", m.LargestLoss.StringFixed(2))
	row("average win", m.AverageWin.StringFixed(2))
	row("average loss", m.AverageLoss.StringFixed(2))
	row("max drawdown", m.MaxDrawdown.StringFixed(2))
	row("open exposure", m.OpenExposure.StringFixed(2))
	row("open positions", strings.Join(m.OpenPositions, ","))
	return b.String()
}
