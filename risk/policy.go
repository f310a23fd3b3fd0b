package risk

import "github.com/shopspring/decimal"

// Policy holds the sizing and allowance limits. Percentages are whole
// numbers: 1 means one percent.
type Policy struct {
	RiskPerTradePct float64 `json:"risk_per_trade_percent" yaml:"risk_per_trade_percent"`
	MinPositionPct  float64 `json:"min_position_percent" yaml:"min_position_percent"`
	MaxPositionPct  float64 `json:"max_position_percent" yaml:"max_position_percent"`
	ShareIncrement  int64   `json:"preferred_share_increment" yaml:"preferred_share_increment"`
	CashReservePct  float64 `json:"cash_reserve_percent" yaml:"cash_reserve_percent"`
	MaxDailyLossPct float64 `json:"max_daily_loss_percent" yaml:"max_daily_loss_percent"`
}

func DefaultPolicy() Policy {
	return Policy{
		RiskPerTradePct: 1,
		MinPositionPct:  3,
		MaxPositionPct:  20,
		ShareIncrement:  5,
		CashReservePct:  10,
		MaxDailyLossPct: 3,
	}
}

// Account is the slice of account state the allowance gates read.
type Account struct {
	StartingBalance decimal.Decimal
	Balance         decimal.Decimal
	BuyingPower     decimal.Decimal
	CashReserve     decimal.Decimal
	UnrealizedPL    decimal.Decimal
}

func pct(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

var hundred = decimal.NewFromInt(100)

// percentOf returns part/whole*100, or zero when whole is not positive.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}
