package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Gate names reported in Allowance.Checks.
const (
	GateBuyingPower   = "has_buying_power"
	GatePositionLimit = "within_position_limit"
	GateRiskLimit     = "within_risk_limit"
	GateDailyLoss     = "within_daily_loss"
	GateCashReserve   = "has_cash_reserve"
)

var ErrRiskLimitExceeded = errors.New("risk limit exceeded")

type Violation struct {
	Code string
	Msg  string
}

// Allowance is the result of the trade-allowance gates. Every gate is
// reported whether it passed or not.
type Allowance struct {
	Allowed    bool            `json:"allowed"`
	Checks     map[string]bool `json:"checks"`
	Violations []Violation     `json:"violations,omitempty"`

	PositionValue   decimal.Decimal `json:"position_value"`
	RiskAmount      decimal.Decimal `json:"risk_amount"`
	PositionPercent float64         `json:"position_percent"`
	RiskPercent     float64         `json:"risk_percent"`
	DayPLPercent    float64         `json:"day_pl_percent"`
}

func (a *Allowance) gate(code string, ok bool, msg string) {
	a.Checks[code] = ok
	if !ok {
		a.Violations = append(a.Violations, Violation{Code: code, Msg: msg})
		a.Allowed = false
	}
}

// Failed lists the gates that did not pass, sorted.
func (a Allowance) Failed() []string {
	var out []string
	for k, ok := range a.Checks {
		if !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Err is nil when the trade is allowed.
func (a Allowance) Err() error {
	if a.Allowed {
		return nil
	}
	return &LimitError{Failed: a.Failed(), Checks: a.Checks}
}

// LimitError names the gates that blocked a trade.
type LimitError struct {
	Failed []string
	Checks map[string]bool
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRiskLimitExceeded, strings.Join(e.Failed, ", "))
}

func (e *LimitError) Unwrap() error {
	return ErrRiskLimitExceeded
}

// Evaluate runs the five independent gates for a proposed position.
func Evaluate(p Policy, acct Account, positionValue, riskAmount decimal.Decimal) Allowance {
	a := Allowance{
		Allowed:       true,
		Checks:        make(map[string]bool, 5),
		PositionValue: positionValue,
		RiskAmount:    riskAmount,
	}

	posPct := percentOf(positionValue, acct.Balance)
	riskPct := percentOf(riskAmount, acct.Balance)
	dayPct := percentOf(acct.UnrealizedPL, acct.StartingBalance)
	a.PositionPercent, _ = posPct.Float64()
	a.RiskPercent, _ = riskPct.Float64()
	a.DayPLPercent, _ = dayPct.Float64()

	a.gate(GateBuyingPower, positionValue.LessThanOrEqual(acct.BuyingPower),
		fmt.Sprintf("position value %s exceeds buying power %s", positionValue.StringFixed(2), acct.BuyingPower.StringFixed(2)))

	a.gate(GatePositionLimit, acct.Balance.IsPositive() && posPct.LessThanOrEqual(pct(p.MaxPositionPct)),
		fmt.Sprintf("position %.2f%% exceeds max %.2f%%", a.PositionPercent, p.MaxPositionPct))

	a.gate(GateRiskLimit, acct.Balance.IsPositive() && riskPct.LessThanOrEqual(pct(p.RiskPerTradePct)),
		fmt.Sprintf("risk %.2f%% exceeds per-trade max %.2f%%", a.RiskPercent, p.RiskPerTradePct))

	a.gate(GateDailyLoss, dayPct.GreaterThanOrEqual(pct(p.MaxDailyLossPct).Neg()),
		fmt.Sprintf("day P&L %.2f%% is past the %.2f%% loss limit", a.DayPLPercent, p.MaxDailyLossPct))

	a.gate(GateCashReserve, acct.BuyingPower.Sub(positionValue).GreaterThanOrEqual(acct.CashReserve),
		fmt.Sprintf("order would dip into the %s cash reserve", acct.CashReserve.StringFixed(2)))

	return a
}
