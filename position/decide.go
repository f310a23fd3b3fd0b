package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/oracle"
)

type Policy struct {
	// MaxAdverseExcursion is the fractional drop below entry that forces
	// an exit: 0.02 exits once price is more than 2% under entry.
	MaxAdverseExcursion float64 `json:"max_adverse_excursion" yaml:"max_adverse_excursion"`
	// RiskPerTradePct caps the risk at a tightened stop, as a percent of
	// the account balance. It is not configured on its own; the engine
	// copies it from risk.Policy.
	RiskPerTradePct float64 `json:"-" yaml:"-"`
	// DefaultExitFraction is used by PARTIAL_EXIT when the action names
	// no fraction.
	DefaultExitFraction float64 `json:"default_exit_fraction" yaml:"default_exit_fraction"`
	// MaxHoldTime flags positions held longer than this. Zero disables it.
	MaxHoldTime time.Duration `json:"max_hold_time" yaml:"max_hold_time"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAdverseExcursion: 0.02,
		RiskPerTradePct:     1,
		DefaultExitFraction: 0.5,
	}
}

const (
	ReasonStopLoss    = "stop loss triggered"
	ReasonAdverseMove = "large adverse move"
)

// Input is everything Decide looks at.
type Input struct {
	Position ledger.TradeRecord
	Action   oracle.Action
	Price    decimal.Decimal
	Balance  decimal.Decimal
	Now      time.Time
}

// Decision is the outcome of one transition. Kind is what will actually
// happen, which differs from Requested when a hard override fires, when
// a request is rejected, or when the oracle sent an unknown kind.
type Decision struct {
	Symbol     string            `json:"symbol"`
	TradeID    int64             `json:"trade_id"`
	Requested  oracle.ActionKind `json:"requested"`
	Kind       oracle.ActionKind `json:"kind"`
	Reason     string            `json:"reason"`
	Overridden bool              `json:"overridden,omitempty"`
	Rejected   bool              `json:"rejected,omitempty"`
	Price      decimal.Decimal   `json:"price"`

	// ExitSize is the shares to sell for EXIT and PARTIAL_EXIT.
	ExitSize decimal.Decimal `json:"exit_size"`
	// NewStop is set for ADJUST_STOPS.
	NewStop decimal.Decimal `json:"new_stop"`
	// HeldTooLong is set when the position is past Policy.MaxHoldTime.
	HeldTooLong bool `json:"held_too_long,omitempty"`

	// SliceID is the CLOSED record created by an executed PARTIAL_EXIT.
	SliceID int64 `json:"slice_id,omitempty"`
}

// Mutates reports whether executing d changes the ledger.
func (d Decision) Mutates() bool {
	return d.Kind == oracle.Exit || d.Kind == oracle.PartialExit || d.Kind == oracle.AdjustStops
}

// Decide is the transition function. It has no side effects. The hard
// override is checked before the oracle's action is looked at.
func Decide(p Policy, in Input) Decision {
	pos := in.Position
	d := Decision{
		Symbol:    pos.Symbol,
		TradeID:   pos.ID,
		Requested: in.Action.Kind,
		Price:     in.Price,
	}
	if p.MaxHoldTime > 0 && !pos.EntryTime.IsZero() && in.Now.Sub(pos.EntryTime) > p.MaxHoldTime {
		d.HeldTooLong = true
	}

	if in.Price.LessThanOrEqual(pos.StopPrice) {
		return d.exit(pos, ReasonStopLoss, true)
	}
	if pos.EntryPrice.IsPositive() {
		adverse := pos.EntryPrice.Sub(in.Price).Div(pos.EntryPrice)
		if adverse.GreaterThan(decimal.NewFromFloat(p.MaxAdverseExcursion)) {
			return d.exit(pos, fmt.Sprintf("%s of %s%%", ReasonAdverseMove, adverse.Mul(decimal.NewFromInt(100)).StringFixed(2)), true)
		}
	}

	switch in.Action.Kind {
	case oracle.Hold:
		d.Kind = oracle.Hold
		d.Reason = in.Action.Reason
		return d
	case oracle.Exit:
		return d.exit(pos, in.Action.Reason, false)
	case oracle.PartialExit:
		return decidePartial(p, d, pos, in.Action)
	case oracle.AdjustStops:
		return decideStop(p, d, pos, in)
	default:
		d.Kind = oracle.Hold
		d.Reason = fmt.Sprintf("unrecognized action %q, holding", in.Action.Kind)
		return d
	}
}

func (d Decision) exit(pos ledger.TradeRecord, reason string, override bool) Decision {
	d.Kind = oracle.Exit
	d.Reason = reason
	d.Overridden = override
	d.ExitSize = pos.PositionSize
	return d
}

func (d Decision) reject(reason string) Decision {
	d.Kind = oracle.Hold
	d.Rejected = true
	d.Reason = reason
	return d
}

// exitShare reads the share of the position to sell as num/den.
// exit_percentage wins over exit_fraction, which wins over scale_points.
func exitShare(p Policy, a oracle.Action) (num, den decimal.Decimal, err error) {
	one := decimal.NewFromInt(1)
	hundred := decimal.NewFromInt(100)
	if v, ok, err := a.Decimal(oracle.ParamExitPercentage); ok {
		if err != nil {
			return num, den, err
		}
		if !v.IsPositive() || v.GreaterThan(hundred) {
			return num, den, fmt.Errorf("exit_percentage %s out of range", v)
		}
		return v, hundred, nil
	}
	if v, ok, err := a.Decimal(oracle.ParamExitFraction); ok {
		if err != nil {
			return num, den, err
		}
		if !v.IsPositive() || v.GreaterThan(one) {
			return num, den, fmt.Errorf("exit_fraction %s out of range", v)
		}
		return v, one, nil
	}
	if v, ok, err := a.Decimal(oracle.ParamScalePoints); ok {
		if err != nil {
			return num, den, err
		}
		if v.LessThan(one) {
			return num, den, fmt.Errorf("scale_points %s out of range", v)
		}
		return one, v.Floor(), nil
	}
	return decimal.NewFromFloat(p.DefaultExitFraction), one, nil
}

func decidePartial(p Policy, d Decision, pos ledger.TradeRecord, a oracle.Action) Decision {
	num, den, err := exitShare(p, a)
	if err != nil {
		return d.reject("partial exit: " + err.Error())
	}
	shares := pos.PositionSize.Mul(num).Div(den).Floor()
	if !shares.IsPositive() {
		return d.reject(fmt.Sprintf("partial exit of %s rounds to zero shares", pos.PositionSize))
	}
	if shares.GreaterThanOrEqual(pos.PositionSize) {
		return d.exit(pos, a.Reason, false)
	}
	d.Kind = oracle.PartialExit
	d.Reason = a.Reason
	d.ExitSize = shares
	return d
}

func decideStop(p Policy, d Decision, pos ledger.TradeRecord, in Input) Decision {
	stop, ok, err := in.Action.Decimal(oracle.ParamStopPrice)
	switch {
	case !ok:
		return d.reject("adjust stops: no stop price given")
	case err != nil:
		return d.reject("adjust stops: " + err.Error())
	case stop.LessThanOrEqual(pos.StopPrice):
		return d.reject(fmt.Sprintf("adjust stops: %s does not tighten stop %s", stop, pos.StopPrice))
	case stop.GreaterThanOrEqual(in.Price):
		return d.reject(fmt.Sprintf("adjust stops: %s is not below price %s", stop, in.Price))
	case !in.Balance.IsPositive():
		return d.reject("adjust stops: no account balance to measure risk against")
	}

	riskPct := in.Price.Sub(stop).Mul(pos.PositionSize).Div(in.Balance).Mul(decimal.NewFromInt(100))
	if riskPct.GreaterThan(decimal.NewFromFloat(p.RiskPerTradePct)) {
		return d.reject(fmt.Sprintf("adjust stops: risk %s%% at %s exceeds %.2f%%", riskPct.StringFixed(2), stop, p.RiskPerTradePct))
	}
	d.Kind = oracle.AdjustStops
	d.Reason = in.Action.Reason
	d.NewStop = stop
	return d
}
