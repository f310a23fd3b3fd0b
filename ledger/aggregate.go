package ledger

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Ratio is a float that survives JSON with an infinite value.
type Ratio float64

func (r Ratio) IsInf() bool {
	return math.IsInf(float64(r), 1)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsInf() {
		return []byte(`"inf"`), nil
	}
	return []byte(strconv.FormatFloat(float64(r), 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == `"inf"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}

func (r Ratio) String() string {
	if r.IsInf() {
		return "inf"
	}
	return strconv.FormatFloat(float64(r), 'f', 2, 64)
}

// PerformanceMetrics is derived from the full set of TradeRecords and is
// never mutated on its own.
type PerformanceMetrics struct {
	TotalTrades   int     `json:"total_trades"`
	OpenTrades    int     `json:"open_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  Ratio   `json:"profit_factor"`

	LargestWin        decimal.Decimal `json:"largest_win"`
	LargestLoss       decimal.Decimal `json:"largest_loss"`
	AverageWin        decimal.Decimal `json:"average_win"`
	AverageLoss       decimal.Decimal `json:"average_loss"`
	AverageProfitLoss decimal.Decimal `json:"avg_profit_loss"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	TotalLoss         decimal.Decimal `json:"total_loss"`
	MaxDrawdown       decimal.Decimal `json:"max_drawdown"`

	OpenExposure    decimal.Decimal `json:"open_exposure"`
	OpenPositions   []string        `json:"open_positions"`
	AvgPositionSize decimal.Decimal `json:"avg_position_size"`
	MaxPositionSize decimal.Decimal `json:"max_position_size"`
	MinPositionSize decimal.Decimal `json:"min_position_size"`

	LastUpdated time.Time `json:"last_updated"`
}

// Aggregate computes PerformanceMetrics in one pass over records plus a
// sort of the closed trades by exit time.
func Aggregate(records []TradeRecord, now time.Time) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalTrades:   len(records),
		OpenPositions: []string{},
		LastUpdated:   now,
	}

	var closed []TradeRecord
	var openSize decimal.Decimal
	for _, t := range records {
		if t.Status.IsOpen() {
			m.OpenTrades++
			m.OpenPositions = append(m.OpenPositions, t.Symbol)
			m.OpenExposure = m.OpenExposure.Add(t.Value())
			openSize = openSize.Add(t.PositionSize)
			if m.OpenTrades == 1 || t.PositionSize.GreaterThan(m.MaxPositionSize) {
				m.MaxPositionSize = t.PositionSize
			}
			if m.OpenTrades == 1 || t.PositionSize.LessThan(m.MinPositionSize) {
				m.MinPositionSize = t.PositionSize
			}
			continue
		}
		closed = append(closed, t)
	}
	m.ClosedTrades = len(closed)
	if m.OpenTrades > 0 {
		m.AvgPositionSize = openSize.Div(decimal.NewFromInt(int64(m.OpenTrades)))
	}
	if len(closed) == 0 {
		return m
	}

	var total decimal.Decimal
	for _, t := range closed {
		pl := t.ProfitLoss.Decimal
		total = total.Add(pl)
		switch pl.Sign() {
		case 1:
			m.WinningTrades++
			m.TotalProfit = m.TotalProfit.Add(pl)
			if pl.GreaterThan(m.LargestWin) {
				m.LargestWin = pl
			}
		case -1:
			m.LosingTrades++
			m.TotalLoss = m.TotalLoss.Add(pl)
			if pl.LessThan(m.LargestLoss) {
				m.LargestLoss = pl
			}
		}
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades) * 100
	m.AverageProfitLoss = total.Div(decimal.NewFromInt(int64(m.ClosedTrades)))
	if m.WinningTrades > 0 {
		m.AverageWin = m.TotalProfit.Div(decimal.NewFromInt(int64(m.WinningTrades)))
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = m.TotalLoss.Div(decimal.NewFromInt(int64(m.LosingTrades)))
	}

	switch {
	case m.LosingTrades > 0:
		pf, _ := m.TotalProfit.Div(m.TotalLoss.Abs()).Float64()
		m.ProfitFactor = Ratio(pf)
	case m.WinningTrades > 0:
		m.ProfitFactor = Ratio(math.Inf(1))
	}

	m.MaxDrawdown = maxDrawdown(closed)
	return m
}

// maxDrawdown walks cumulative closed P&L in exit order and returns the
// magnitude of the deepest fall below its running peak.
func maxDrawdown(closed []TradeRecord) decimal.Decimal {
	ordered := make([]TradeRecord, len(closed))
	copy(ordered, closed)
	sortByExit(ordered)

	var cum, peak, worst decimal.Decimal
	for i, t := range ordered {
		cum = cum.Add(t.ProfitLoss.Decimal)
		if i == 0 || cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := cum.Sub(peak); dd.LessThan(worst) {
			worst = dd
		}
	}
	return worst.Abs()
}

func exitTime(t TradeRecord) time.Time {
	if t.ExitTime == nil {
		return time.Time{}
	}
	return *t.ExitTime
}
