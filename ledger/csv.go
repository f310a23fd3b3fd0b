package ledger

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var csvHeader = []string{
	"id", "symbol", "entry_price", "stop_price", "target_price", "position_size", "status",
	"entry_time", "exit_price", "exit_time", "profit_loss", "profit_loss_percent",
	"confidence", "reason", "notes", "broker", "parent_id",
}

// WriteCSV exports records in the trade table's column order.
func WriteCSV(w io.Writer, recs []TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range recs {
		exit := ""
		if t.ExitTime != nil {
			exit = t.ExitTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			strconv.FormatInt(t.ID, 10),
			t.Symbol,
			t.EntryPrice.String(),
			t.StopPrice.String(),
			t.TargetPrice.String(),
			t.PositionSize.String(),
			string(t.Status),
			t.EntryTime.UTC().Format(time.RFC3339),
			f(t.ExitPrice),
			exit,
			f(t.ProfitLoss),
			f(t.ProfitLossPercent),
			f(t.Confidence),
			t.Reason,
			t.Notes,
			t.Broker,
			strconv.FormatInt(t.ParentID, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
