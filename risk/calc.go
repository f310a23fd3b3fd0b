package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidRisk = errors.New("invalid risk: entry and stop must differ")

type Inputs struct {
	Balance     decimal.Decimal
	BuyingPower decimal.Decimal
	EntryPrice  decimal.Decimal
	StopPrice   decimal.Decimal
}

type Result struct {
	Shares          int64
	PositionValue   decimal.Decimal
	RiskAmount      decimal.Decimal
	RiskPerShare    decimal.Decimal
	RiskPercent     float64
	PositionPercent float64

	// BelowMinPosition is set when the hard caps keep the position under
	// MinPositionPct of the balance.
	BelowMinPosition bool
}

// Calculate sizes a long position so the loss at the stop stays within
// RiskPerTradePct of the balance. The risk budget, MaxPositionPct and
// buying power are hard caps. MinPositionPct never changes the size; a
// result under it is flagged with BelowMinPosition. The share count is
// rounded to the nearest ShareIncrement and stepped down if rounding
// crossed a hard cap, and every derived figure is computed from the final
// count.
func Calculate(p Policy, in Inputs) (Result, error) {
	rps := in.EntryPrice.Sub(in.StopPrice).Abs()
	if rps.IsZero() {
		return Result{}, ErrInvalidRisk
	}
	if !in.EntryPrice.IsPositive() {
		return Result{}, fmt.Errorf("%w: entry price %s", ErrInvalidRisk, in.EntryPrice)
	}

	maxRisk := in.Balance.Mul(pct(p.RiskPerTradePct)).Div(hundred)
	shares := floorShares(maxRisk, rps)
	shares = minInt(shares, floorShares(in.Balance.Mul(pct(p.MaxPositionPct)).Div(hundred), in.EntryPrice))
	shares = minInt(shares, floorShares(in.BuyingPower, in.EntryPrice))
	limit := shares

	if inc := p.ShareIncrement; inc > 1 {
		shares = decimal.NewFromInt(shares).Div(decimal.NewFromInt(inc)).Round(0).IntPart() * inc
		for shares > limit {
			shares -= inc
		}
	}
	if shares < 0 {
		shares = 0
	}

	n := decimal.NewFromInt(shares)
	res := Result{
		Shares:        shares,
		PositionValue: n.Mul(in.EntryPrice),
		RiskAmount:    n.Mul(rps),
		RiskPerShare:  rps,
	}
	res.RiskPercent, _ = percentOf(res.RiskAmount, in.Balance).Float64()
	res.PositionPercent, _ = percentOf(res.PositionValue, in.Balance).Float64()
	minShares := in.Balance.Mul(pct(p.MinPositionPct)).Div(hundred).Div(in.EntryPrice).Ceil().IntPart()
	res.BelowMinPosition = shares < minShares
	return res, nil
}

// PlannedRisk is the loss if a position of shares is stopped out.
func PlannedRisk(shares, entry, stop decimal.Decimal) decimal.Decimal {
	return shares.Mul(entry.Sub(stop).Abs())
}

// RR is reward over risk for a bracketed entry.
func RR(entry, stop, target decimal.Decimal) float64 {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return 0
	}
	rr, _ := target.Sub(entry).Abs().Div(risk).Float64()
	return rr
}

func floorShares(amount, per decimal.Decimal) int64 {
	if !per.IsPositive() || !amount.IsPositive() {
		return 0
	}
	q := amount.Div(per).Floor()
	// Div rounds at DivisionPrecision; never hand back a count that overshoots.
	if q.Mul(per).GreaterThan(amount) {
		q = q.Sub(decimal.NewFromInt(1))
	}
	return q.IntPart()
}

func minInt(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
