package account

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/risk"
)

// State is the account bookkeeping at one point in time.
type State struct {
	StartingBalance     decimal.Decimal `json:"starting_balance"`
	CurrentBalance      decimal.Decimal `json:"current_balance"`
	BuyingPower         decimal.Decimal `json:"buying_power"`
	CashReserve         decimal.Decimal `json:"cash_reserve"`
	TotalPositionsValue decimal.Decimal `json:"total_positions_value"`
	UnrealizedPL        decimal.Decimal `json:"unrealized_pl"`
	RealizedPL          decimal.Decimal `json:"realized_pl"`
	HighWaterMark       decimal.Decimal `json:"high_water_mark"`
	Drawdown            float64         `json:"drawdown"`
	LastUpdated         time.Time       `json:"last_updated"`
	Broker              broker.Kind     `json:"broker"`
}

func (s State) TotalPL() decimal.Decimal {
	return s.UnrealizedPL.Add(s.RealizedPL)
}

// TotalPLPercent is total P&L as a percent of the starting balance.
func (s State) TotalPLPercent() float64 {
	if !s.StartingBalance.IsPositive() {
		return 0
	}
	f, _ := s.TotalPL().Div(s.StartingBalance).Mul(decimal.NewFromInt(100)).Float64()
	return f
}

// Model owns one State for the life of a broker session. Collaborators
// share the *Model; there is no package-level account.
type Model struct {
	mu     sync.RWMutex
	state  State
	policy risk.Policy
	now    func() time.Time
	live   bool // a live snapshot has been applied
}

type Option func(*Model)

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// New seeds a paper account with startingBalance. A live session replaces
// the figures on its first RefreshFromBroker, and the high-water mark
// restarts from the live equity.
func New(startingBalance decimal.Decimal, p risk.Policy, opts ...Option) *Model {
	m := &Model{policy: p, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.state = State{
		StartingBalance: startingBalance,
		CurrentBalance:  startingBalance,
		BuyingPower:     startingBalance,
		HighWaterMark:   startingBalance,
		Broker:          broker.KindPaper,
		LastUpdated:     m.now(),
	}
	m.state.CashReserve = m.reserve(startingBalance)
	return m
}

func (m *Model) Policy() risk.Policy {
	return m.policy
}

func (m *Model) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// RefreshFromBroker recomputes the account after a ledger change. A live
// snapshot is authoritative for balance and buying power. Without one the
// balance is rebuilt from the ledger: starting balance plus realized P&L
// of closed records plus unrealized P&L of open records valued at marks,
// falling back to the entry price for symbols with no mark.
func (m *Model) RefreshFromBroker(snap *broker.AccountSnapshot, records []ledger.TradeRecord, marks map[string]decimal.Decimal) State {
	var realized, unrealized, value decimal.Decimal
	for _, r := range records {
		if !r.Status.IsOpen() {
			if r.ProfitLoss.Valid {
				realized = realized.Add(r.ProfitLoss.Decimal)
			}
			continue
		}
		px := r.EntryPrice
		if mk, ok := marks[r.Symbol]; ok && mk.IsPositive() {
			px = mk
		}
		value = value.Add(r.PositionSize.Mul(px))
		unrealized = unrealized.Add(r.PositionSize.Mul(px.Sub(r.EntryPrice)))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.state
	s.RealizedPL = realized
	if snap != nil && snap.Broker.Live() {
		s.Broker = snap.Broker
		s.CurrentBalance = snap.Equity
		if !m.live {
			m.live = true
			s.HighWaterMark = snap.Equity
		}
		s.BuyingPower = snap.BuyingPower
		s.TotalPositionsValue = value
		if !snap.PositionsValue.IsZero() {
			s.TotalPositionsValue = snap.PositionsValue
		}
		s.UnrealizedPL = unrealized
		if !snap.UnrealizedPL.IsZero() {
			s.UnrealizedPL = snap.UnrealizedPL
		}
	} else {
		s.Broker = broker.KindPaper
		s.TotalPositionsValue = value
		s.UnrealizedPL = unrealized
		s.CurrentBalance = s.StartingBalance.Add(unrealized).Add(realized)
		s.BuyingPower = decimal.Max(decimal.Zero, s.CurrentBalance.Sub(value))
	}
	s.CashReserve = m.reserve(s.CurrentBalance)
	m.updateHighWaterMarkLocked()
	return m.state
}

// UpdateHighWaterMarkAndDrawdown raises the high-water mark to the
// current balance if it is higher and recomputes drawdown from it.
func (m *Model) UpdateHighWaterMarkAndDrawdown() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateHighWaterMarkLocked()
	return m.state
}

func (m *Model) updateHighWaterMarkLocked() {
	s := &m.state
	if s.CurrentBalance.GreaterThan(s.HighWaterMark) {
		s.HighWaterMark = s.CurrentBalance
	}
	s.Drawdown = 0
	if s.HighWaterMark.IsPositive() {
		s.Drawdown, _ = s.HighWaterMark.Sub(s.CurrentBalance).Div(s.HighWaterMark).Mul(decimal.NewFromInt(100)).Float64()
	}
	s.LastUpdated = m.now()
}

// CalculatePositionSize sizes a long entry against the current balance
// and buying power.
func (m *Model) CalculatePositionSize(entry, stop decimal.Decimal) (risk.Result, error) {
	s := m.Snapshot()
	return risk.Calculate(m.policy, risk.Inputs{
		Balance:     s.CurrentBalance,
		BuyingPower: s.BuyingPower,
		EntryPrice:  entry,
		StopPrice:   stop,
	})
}

// CheckTradeAllowed runs the allowance gates for a proposed position.
func (m *Model) CheckTradeAllowed(positionValue, riskAmount decimal.Decimal) risk.Allowance {
	s := m.Snapshot()
	return risk.Evaluate(m.policy, risk.Account{
		StartingBalance: s.StartingBalance,
		Balance:         s.CurrentBalance,
		BuyingPower:     s.BuyingPower,
		CashReserve:     s.CashReserve,
		UnrealizedPL:    s.UnrealizedPL,
	}, positionValue, riskAmount)
}

func (m *Model) reserve(balance decimal.Decimal) decimal.Decimal {
	return balance.Mul(decimal.NewFromFloat(m.policy.CashReservePct)).Div(decimal.NewFromInt(100))
}
