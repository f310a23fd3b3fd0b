package paper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/pkg/id"
)

var ErrNoPrice = errors.New("no price to fill at")

type position struct {
	qty decimal.Decimal
	avg decimal.Decimal
}

// Broker fills every order immediately at the requested price. It keeps
// enough bookkeeping to answer snapshots and position queries, but the
// ledger stays the source of truth for paper P&L.
type Broker struct {
	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]*position
	marks     map[string]decimal.Decimal
	orders    map[string]broker.OrderResult
	now       func() time.Time
}

func New(startingCash decimal.Decimal) *Broker {
	return &Broker{
		cash:      startingCash,
		positions: make(map[string]*position),
		marks:     make(map[string]decimal.Decimal),
		orders:    make(map[string]broker.OrderResult),
		now:       time.Now,
	}
}

var _ broker.Broker = (*Broker)(nil)

func (b *Broker) Kind() broker.Kind {
	return broker.KindPaper
}

// Mark records the latest price for symbol, used to value open positions.
func (b *Broker) Mark(symbol string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks[symbol] = price
}

func (b *Broker) GetAccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var value, upl decimal.Decimal
	for sym, p := range b.positions {
		px := p.avg
		if m, ok := b.marks[sym]; ok {
			px = m
		}
		value = value.Add(p.qty.Mul(px))
		upl = upl.Add(p.qty.Mul(px.Sub(p.avg)))
	}
	bp := b.cash
	if bp.IsNegative() {
		bp = decimal.Zero
	}
	return broker.AccountSnapshot{
		Broker:         broker.KindPaper,
		AccountID:      "paper",
		Cash:           b.cash,
		Equity:         b.cash.Add(value),
		BuyingPower:    bp,
		PositionsValue: value,
		UnrealizedPL:   upl,
		Time:           b.now(),
	}, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderResult, error) {
	if err := spec.Validate(); err != nil {
		return broker.OrderResult{}, broker.Wrap(broker.KindPaper, "place order", err)
	}
	if !spec.Price.IsPositive() {
		return broker.OrderResult{}, broker.Wrap(broker.KindPaper, "place order", ErrNoPrice)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	res := broker.OrderResult{
		ID:             "paper-" + id.New(),
		Broker:         broker.KindPaper,
		Symbol:         spec.Symbol,
		Side:           spec.Side,
		Quantity:       spec.Quantity,
		FilledQuantity: spec.Quantity,
		FillPrice:      spec.Price,
		Status:         broker.StatusFilled,
		SubmittedAt:    b.now(),
	}
	b.applyFillLocked(res)
	b.marks[spec.Symbol] = spec.Price
	b.orders[res.ID] = res
	return res, nil
}

func (b *Broker) applyFillLocked(r broker.OrderResult) {
	notional := r.FilledQuantity.Mul(r.FillPrice)
	p := b.positions[r.Symbol]

	switch r.Side {
	case broker.Buy:
		b.cash = b.cash.Sub(notional)
		if p == nil {
			b.positions[r.Symbol] = &position{qty: r.FilledQuantity, avg: r.FillPrice}
			return
		}
		total := p.qty.Add(r.FilledQuantity)
		p.avg = p.qty.Mul(p.avg).Add(notional).Div(total)
		p.qty = total
	case broker.Sell:
		b.cash = b.cash.Add(notional)
		if p == nil {
			return
		}
		p.qty = p.qty.Sub(r.FilledQuantity)
		if !p.qty.IsPositive() {
			delete(b.positions, r.Symbol)
		}
	}
}

// CancelOrder always reports false: paper orders are filled the moment
// they are placed, and unknown ids have nothing to cancel.
func (b *Broker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok || o.Filled() {
		return false, nil
	}
	o.Status = broker.StatusCanceled
	b.orders[orderID] = o
	return true, nil
}

func (b *Broker) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]broker.BrokerPosition, 0, len(b.positions))
	for sym, p := range b.positions {
		px := p.avg
		if m, ok := b.marks[sym]; ok {
			px = m
		}
		out = append(out, broker.BrokerPosition{
			Symbol:        sym,
			Quantity:      p.qty,
			AvgEntryPrice: p.avg,
			CurrentPrice:  px,
			MarketValue:   p.qty.Mul(px),
			UnrealizedPL:  p.qty.Mul(px.Sub(p.avg)),
		})
	}
	return out, nil
}

// Order returns a previously placed order.
func (b *Broker) Order(orderID string) (broker.OrderResult, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	return o, ok
}
