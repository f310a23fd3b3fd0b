package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/oracle"
)

// Ledger is the part of ledger.Store the machine mutates through.
type Ledger interface {
	OpenPosition(symbol string) (ledger.TradeRecord, bool)
	UpdateTrade(ctx context.Context, symbol string, p ledger.Patch) error
	SplitTrade(ctx context.Context, symbol string, exitSize, exitPrice decimal.Decimal, note string) (int64, error)
}

// Mark is the in-memory price track of a symbol, refreshed on every
// action including HOLD.
type Mark struct {
	Current   decimal.Decimal `json:"current"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Machine struct {
	policy  Policy
	ledger  Ledger
	balance func() decimal.Decimal
	now     func() time.Time

	mu    sync.Mutex
	marks map[string]Mark
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New returns a machine over l. balance reports the current account
// balance, used to bound the risk of a tightened stop.
func New(p Policy, l Ledger, balance func() decimal.Decimal, opts ...Option) *Machine {
	m := &Machine{
		policy:  p,
		ledger:  l,
		balance: balance,
		now:     time.Now,
		marks:   make(map[string]Mark),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mark records price for symbol and returns the updated track.
func (m *Machine) Mark(symbol string, price decimal.Decimal) Mark {
	symbol = ledger.NormalizeSymbol(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.marks[symbol]
	if !ok {
		mk = Mark{High: price, Low: price}
	}
	mk.Current = price
	if price.GreaterThan(mk.High) {
		mk.High = price
	}
	if price.LessThan(mk.Low) {
		mk.Low = price
	}
	mk.UpdatedAt = m.now()
	m.marks[symbol] = mk
	return mk
}

func (m *Machine) MarkFor(symbol string) (Mark, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.marks[ledger.NormalizeSymbol(symbol)]
	return mk, ok
}

// Prices returns the current mark of every tracked symbol.
func (m *Machine) Prices() map[string]decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(m.marks))
	for sym, mk := range m.marks {
		out[sym] = mk.Current
	}
	return out
}

func (m *Machine) forget(symbol string) {
	m.mu.Lock()
	delete(m.marks, ledger.NormalizeSymbol(symbol))
	m.mu.Unlock()
}

// Prepare marks the price, looks up the open position and decides what
// to do, without touching the ledger. Callers that must place an order
// first use Prepare and Execute separately; everyone else uses Apply.
func (m *Machine) Prepare(ctx context.Context, symbol string, a oracle.Action, price decimal.Decimal) (Decision, error) {
	symbol = ledger.NormalizeSymbol(symbol)
	m.Mark(symbol, price)

	pos, ok := m.ledger.OpenPosition(symbol)
	if !ok {
		return Decision{}, fmt.Errorf("position %s: %w", symbol, ledger.ErrNotFound)
	}

	var bal decimal.Decimal
	if m.balance != nil {
		bal = m.balance()
	}
	d := Decide(m.policy, Input{
		Position: pos,
		Action:   a,
		Price:    price,
		Balance:  bal,
		Now:      m.now(),
	})

	switch {
	case d.Overridden:
		logger.Risk(ctx, d.Symbol, "hard_override",
			zap.String("reason", d.Reason),
			zap.String("requested", string(d.Requested)),
			zap.String("price", price.String()))
	case d.Rejected:
		logger.Risk(ctx, d.Symbol, "action_rejected",
			zap.String("reason", d.Reason),
			zap.String("requested", string(d.Requested)))
	case !a.Kind.Known():
		logger.Warn(ctx, "unrecognized oracle action", zap.String("symbol", d.Symbol), zap.String("kind", string(a.Kind)))
	}
	if d.HeldTooLong {
		logger.Risk(ctx, d.Symbol, "max_hold_time",
			zap.Duration("held", m.now().Sub(pos.EntryTime)),
			zap.Duration("limit", m.policy.MaxHoldTime))
	}
	logger.Decision(ctx, d.Symbol, string(d.Kind), d.Reason)
	return d, nil
}

// Execute applies a prepared decision to the ledger.
func (m *Machine) Execute(ctx context.Context, d Decision) (Decision, error) {
	switch d.Kind {
	case oracle.Exit:
		if err := m.ledger.UpdateTrade(ctx, d.Symbol, ledger.Close(d.Price, "Exit reason: "+orDefault(d.Reason))); err != nil {
			return d, fmt.Errorf("exit %s: %w", d.Symbol, err)
		}
		m.forget(d.Symbol)

	case oracle.PartialExit:
		note := fmt.Sprintf("Partial exit of %s shares at $%s. Reason: %s", d.ExitSize, d.Price.StringFixed(2), orDefault(d.Reason))
		id, err := m.ledger.SplitTrade(ctx, d.Symbol, d.ExitSize, d.Price, note)
		if err != nil {
			return d, fmt.Errorf("partial exit %s: %w", d.Symbol, err)
		}
		d.SliceID = id

	case oracle.AdjustStops:
		stop := d.NewStop
		p := ledger.Patch{
			StopPrice: &stop,
			Notes:     fmt.Sprintf("Stop adjusted to $%s. Reason: %s", stop.StringFixed(2), orDefault(d.Reason)),
		}
		if err := m.ledger.UpdateTrade(ctx, d.Symbol, p); err != nil {
			return d, fmt.Errorf("adjust stop %s: %w", d.Symbol, err)
		}
	}
	return d, nil
}

// Apply runs one oracle action against the symbol's open position.
func (m *Machine) Apply(ctx context.Context, symbol string, a oracle.Action, price decimal.Decimal) (Decision, error) {
	d, err := m.Prepare(ctx, symbol, a, price)
	if err != nil {
		return d, err
	}
	return m.Execute(ctx, d)
}

func orDefault(reason string) string {
	if reason == "" {
		return "No reason provided"
	}
	return reason
}
