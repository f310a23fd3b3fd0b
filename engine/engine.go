package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/account"
	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/oracle"
	"github.com/rustyeddy/tradeassist/pkg/id"
	"github.com/rustyeddy/tradeassist/position"
	"github.com/rustyeddy/tradeassist/risk"
	"github.com/rustyeddy/tradeassist/trace"
)

var ErrNoShares = fmt.Errorf("%w: position size rounds to zero shares", risk.ErrRiskLimitExceeded)

// Engine is what the orchestration loop talks to. It owns no trade state
// itself: the ledger holds trades, the account model holds balances and
// the position machine holds marks.
type Engine struct {
	ledger    *ledger.Store
	account   *account.Model
	positions *position.Machine
	broker    broker.Broker

	locks     symbolLocks
	refreshMu sync.Mutex
}

// New wires the engine. The risk cap on a tightened stop is taken from
// the account's risk policy, whatever p carries.
func New(store *ledger.Store, acct *account.Model, b broker.Broker, p position.Policy, opts ...position.Option) *Engine {
	p.RiskPerTradePct = acct.Policy().RiskPerTradePct
	e := &Engine{
		ledger:  store,
		account: acct,
		broker:  b,
	}
	e.positions = position.New(p, store, func() decimal.Decimal {
		return acct.Snapshot().CurrentBalance
	}, opts...)
	return e
}

func (e *Engine) Ledger() *ledger.Store        { return e.ledger }
func (e *Engine) Account() *account.Model      { return e.account }
func (e *Engine) Positions() *position.Machine { return e.positions }
func (e *Engine) Broker() broker.Broker        { return e.broker }

// TradeAllowedResult is the sizing and allowance verdict for a proposal.
type TradeAllowedResult struct {
	Symbol     string          `json:"symbol"`
	Shares     decimal.Decimal `json:"shares"`
	RewardRisk float64         `json:"reward_risk"`
	// Sizing is set when the account model sized the trade because the
	// proposal carried no size.
	Sizing *risk.Result `json:"sizing,omitempty"`
	risk.Allowance
}

// EvaluateSetup sizes a proposal when it has no size and runs the
// allowance gates. A blocked trade is not an error here; callers read
// Allowed and Checks.
func (e *Engine) EvaluateSetup(ctx context.Context, p oracle.SetupProposal) (TradeAllowedResult, error) {
	res := TradeAllowedResult{
		Symbol:     p.Symbol,
		Shares:     p.Size.Floor(),
		RewardRisk: risk.RR(p.Entry, p.Stop, p.Target),
	}
	if res.Shares.IsZero() {
		sz, err := e.account.CalculatePositionSize(p.Entry, p.Stop)
		if err != nil {
			return res, fmt.Errorf("evaluate %s: %w", p.Symbol, err)
		}
		res.Sizing = &sz
		res.Shares = decimal.NewFromInt(sz.Shares)
	}
	if !res.Shares.IsPositive() {
		return res, fmt.Errorf("evaluate %s: %w", p.Symbol, ErrNoShares)
	}

	value := res.Shares.Mul(p.Entry)
	res.Allowance = e.account.CheckTradeAllowed(value, risk.PlannedRisk(res.Shares, p.Entry, p.Stop))

	if !res.Allowed {
		logger.Risk(ctx, p.Symbol, "trade_blocked",
			zap.Strings("failed", res.Failed()),
			zap.String("position_value", res.PositionValue.String()),
			zap.String("risk_amount", res.RiskAmount.String()))
	}
	return res, nil
}

type OpenResult struct {
	Evaluation TradeAllowedResult `json:"evaluation"`
	Order      broker.OrderResult `json:"order"`
	TradeID    int64              `json:"trade_id"`
	Account    account.State      `json:"account"`
}

// OpenPosition evaluates p, buys through the broker and logs the trade.
// Nothing reaches the ledger unless the gates pass and the broker accepts
// the order.
func (e *Engine) OpenPosition(ctx context.Context, p oracle.SetupProposal) (OpenResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.OpenPosition")
	defer span.End()

	unlock := e.locks.lock(p.Symbol)
	defer unlock()

	var out OpenResult
	if _, ok := e.ledger.OpenPosition(p.Symbol); ok {
		return out, fmt.Errorf("open %s: %w", p.Symbol, ledger.ErrDuplicateOpenPosition)
	}

	eval, err := e.EvaluateSetup(ctx, p)
	out.Evaluation = eval
	if err != nil {
		return out, err
	}
	if !eval.Allowed {
		return out, fmt.Errorf("open %s: %w", p.Symbol, eval.Err())
	}

	order, err := e.broker.PlaceOrder(ctx, broker.OrderSpec{
		Symbol:   p.Symbol,
		Side:     broker.Buy,
		Quantity: eval.Shares,
		Type:     broker.Market,
		Price:    p.Entry,
		ClientID: id.New(),
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "buy order failed", err, zap.String("symbol", p.Symbol))
		return out, err
	}
	out.Order = order

	rec := ledger.TradeRecord{
		Symbol:       p.Symbol,
		EntryPrice:   p.Entry,
		StopPrice:    p.Stop,
		TargetPrice:  p.Target,
		PositionSize: eval.Shares,
		Confidence:   p.Confidence,
		Reason:       p.Reason,
		Broker:       string(e.broker.Kind()),
		Notes:        fmt.Sprintf("order %s %s", order.ID, order.Status),
	}
	if order.FillPrice.IsPositive() {
		rec.EntryPrice = order.FillPrice
	}
	if order.FilledQuantity.IsPositive() {
		rec.PositionSize = order.FilledQuantity
	}

	id, err := e.ledger.LogTrade(ctx, rec, ledger.Bracketed())
	if err != nil {
		// The broker holds shares the ledger does not know about.
		logger.ErrorWithErr(ctx, "filled order could not be logged", err,
			zap.String("symbol", p.Symbol),
			zap.String("order_id", order.ID))
		return out, err
	}
	out.TradeID = id
	e.positions.Mark(p.Symbol, rec.EntryPrice)

	out.Account, err = e.Refresh(ctx)
	if err != nil {
		logger.Warn(ctx, "account refresh failed", zap.Error(err))
	}
	return out, nil
}

// LogTrade records a trade made outside OpenPosition.
func (e *Engine) LogTrade(ctx context.Context, rec ledger.TradeRecord, opts ...ledger.LogOption) (int64, error) {
	unlock := e.locks.lock(rec.Symbol)
	defer unlock()

	if rec.Broker == "" {
		rec.Broker = string(e.broker.Kind())
	}
	id, err := e.ledger.LogTrade(ctx, rec, opts...)
	if err != nil {
		return 0, err
	}
	if _, err := e.Refresh(ctx); err != nil {
		logger.Warn(ctx, "account refresh failed", zap.Error(err))
	}
	return id, nil
}

type ActionResult struct {
	Decision position.Decision   `json:"decision"`
	Order    *broker.OrderResult `json:"order,omitempty"`
}

// ApplyAction runs an oracle action against the open position for symbol
// at price. For exits the sell order goes to the broker first; if it
// fails the ledger is left alone.
func (e *Engine) ApplyAction(ctx context.Context, symbol string, a oracle.Action, price decimal.Decimal) (ActionResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.ApplyAction")
	defer span.End()

	var out ActionResult
	symbol = ledger.NormalizeSymbol(symbol)
	if err := checkPrice(symbol, price); err != nil {
		return out, err
	}

	unlock := e.locks.lock(symbol)
	defer unlock()

	d, err := e.positions.Prepare(ctx, symbol, a, price)
	out.Decision = d
	if err != nil {
		return out, err
	}

	if d.Kind == oracle.Exit || d.Kind == oracle.PartialExit {
		order, err := e.broker.PlaceOrder(ctx, broker.OrderSpec{
			Symbol:   d.Symbol,
			Side:     broker.Sell,
			Quantity: d.ExitSize,
			Type:     broker.Market,
			Price:    price,
			ClientID: id.New(),
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "sell order failed", err, zap.String("symbol", d.Symbol))
			return out, err
		}
		out.Order = &order
		if order.FillPrice.IsPositive() {
			d.Price = order.FillPrice
		}
	}

	d, err = e.positions.Execute(ctx, d)
	out.Decision = d
	if err != nil {
		fields := []zap.Field{zap.String("symbol", d.Symbol)}
		if out.Order != nil {
			fields = append(fields, zap.String("order_id", out.Order.ID))
		}
		logger.ErrorWithErr(ctx, "position update failed", err, fields...)
		return out, err
	}

	if _, err := e.Refresh(ctx); err != nil {
		logger.Warn(ctx, "account refresh failed", zap.Error(err))
	}
	return out, nil
}

func checkPrice(symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: %s price %s must be positive", ledger.ErrInvalidTrade, symbol, price)
	}
	return nil
}

// Refresh rebuilds the account from the ledger and, for a live broker,
// its account snapshot. A failed snapshot leaves the account as it was.
func (e *Engine) Refresh(ctx context.Context) (account.State, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	var snap *broker.AccountSnapshot
	if e.broker.Kind().Live() {
		s, err := e.broker.GetAccountSnapshot(ctx)
		if err != nil {
			return e.account.Snapshot(), fmt.Errorf("refresh: %w", err)
		}
		snap = &s
	}
	return e.account.RefreshFromBroker(snap, e.ledger.Trades(), e.positions.Prices()), nil
}

func (e *Engine) GetAccountMetrics() account.State {
	return e.account.Snapshot()
}

func (e *Engine) GetPerformanceMetrics(ctx context.Context) ledger.PerformanceMetrics {
	return e.ledger.GetMetrics(ctx)
}

// IsBlocked reports whether err is a refusal by the risk gates rather than
// a failure.
func IsBlocked(err error) bool {
	return errors.Is(err, risk.ErrRiskLimitExceeded)
}
