package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Broker is the one seam between the engine and an execution venue. The
// account model and position machine only ever see this interface.
type Broker interface {
	Kind() Kind
	GetAccountSnapshot(ctx context.Context) (AccountSnapshot, error)
	PlaceOrder(ctx context.Context, spec OrderSpec) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
}

type Kind string

const (
	KindPaper     Kind = "paper"
	KindAlpaca    Kind = "alpaca"
	KindRobinhood Kind = "robinhood"
)

// Live reports whether the venue's account snapshot is authoritative.
func (k Kind) Live() bool {
	return k != KindPaper
}

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

type OrderType string

const (
	Market OrderType = "market"
	Limit  OrderType = "limit"
)

type OrderStatus string

const (
	StatusFilled   OrderStatus = "filled"
	StatusAccepted OrderStatus = "accepted"
	StatusPartial  OrderStatus = "partially_filled"
	StatusCanceled OrderStatus = "canceled"
	StatusRejected OrderStatus = "rejected"
	StatusUnknown  OrderStatus = "unknown"
)

type OrderSpec struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
	Type     OrderType
	// Price is the requested price: the limit for limit orders and the
	// simulated fill for paper market orders.
	Price       decimal.Decimal
	TimeInForce string
	ClientID    string
}

func (o OrderSpec) Validate() error {
	switch {
	case strings.TrimSpace(o.Symbol) == "":
		return errors.New("order: symbol is required")
	case o.Side != Buy && o.Side != Sell:
		return fmt.Errorf("order: unknown side %q", o.Side)
	case !o.Quantity.IsPositive():
		return errors.New("order: quantity must be positive")
	case o.Type == Limit && !o.Price.IsPositive():
		return errors.New("order: limit order needs a price")
	}
	return nil
}

type OrderResult struct {
	ID             string          `json:"id"`
	Broker         Kind            `json:"broker"`
	Symbol         string          `json:"symbol"`
	Side           Side            `json:"side"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	FillPrice      decimal.Decimal `json:"fill_price"`
	Status         OrderStatus     `json:"status"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}

// Filled reports whether the full quantity executed.
func (r OrderResult) Filled() bool {
	return r.Status == StatusFilled
}

type AccountSnapshot struct {
	Broker         Kind            `json:"broker"`
	AccountID      string          `json:"account_id"`
	Cash           decimal.Decimal `json:"cash"`
	Equity         decimal.Decimal `json:"equity"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	PositionsValue decimal.Decimal `json:"positions_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	Time           time.Time       `json:"time"`
}

type BrokerPosition struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

var ErrBroker = errors.New("broker error")

// Error is every failure a Broker returns. errors.Is(err, ErrBroker) holds
// for all of them.
type Error struct {
	Broker Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Broker, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Broker, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrBroker
}

// Wrap returns err as a *Error unless it already is one.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	return &Error{Broker: kind, Op: op, Err: err}
}
