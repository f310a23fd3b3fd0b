package brokerobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/trace"
)

// observableBroker wraps a Broker with spans and structured logs.
type observableBroker struct {
	broker broker.Broker
}

var _ broker.Broker = (*observableBroker)(nil)

// Wrap returns b decorated with tracing and logging. Wrapping twice is a
// no-op.
func Wrap(b broker.Broker) broker.Broker {
	if ob, ok := b.(*observableBroker); ok {
		return ob
	}
	return &observableBroker{broker: b}
}

func (ob *observableBroker) Kind() broker.Kind {
	return ob.broker.Kind()
}

func (ob *observableBroker) kind() zap.Field {
	return zap.String("broker", string(ob.broker.Kind()))
}

func (ob *observableBroker) GetAccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetAccountSnapshot")
	defer span.End()

	snap, err := ob.broker.GetAccountSnapshot(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "failed to fetch account snapshot", err, ob.kind())
		return broker.AccountSnapshot{}, err
	}
	logger.Debug(ctx, "account snapshot fetched",
		ob.kind(),
		zap.String("equity", snap.Equity.String()),
		zap.String("buying_power", snap.BuyingPower.String()),
	)
	return snap, nil
}

func (ob *observableBroker) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderResult, error) {
	ctx, span := trace.StartSpan(ctx, "broker.PlaceOrder")
	defer span.End()

	logger.Info(ctx, "placing order",
		ob.kind(),
		zap.String("symbol", spec.Symbol),
		zap.String("side", string(spec.Side)),
		zap.String("quantity", spec.Quantity.String()),
		zap.String("price", spec.Price.String()),
	)

	res, err := ob.broker.PlaceOrder(ctx, spec)
	if err != nil {
		logger.ErrorWithErr(ctx, "failed to place order", err,
			ob.kind(),
			zap.String("symbol", spec.Symbol),
			zap.String("side", string(spec.Side)),
		)
		return broker.OrderResult{}, err
	}

	if res.Filled() {
		logger.Trade(ctx, res.Symbol, string(res.Side), res.FilledQuantity, res.FillPrice, res.ID, ob.kind())
	} else {
		logger.Info(ctx, "order accepted",
			ob.kind(),
			zap.String("symbol", res.Symbol),
			zap.String("order_id", res.ID),
			zap.String("status", string(res.Status)),
		)
	}
	return res, nil
}

func (ob *observableBroker) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "broker.CancelOrder")
	defer span.End()

	ok, err := ob.broker.CancelOrder(ctx, orderID)
	if err != nil {
		logger.ErrorWithErr(ctx, "failed to cancel order", err, ob.kind(), zap.String("order_id", orderID))
		return false, err
	}
	logger.Info(ctx, "cancel requested",
		ob.kind(),
		zap.String("order_id", orderID),
		zap.Bool("canceled", ok),
	)
	return ok, nil
}

func (ob *observableBroker) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	ctx, span := trace.StartSpan(ctx, "broker.GetPositions")
	defer span.End()

	pos, err := ob.broker.GetPositions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "failed to fetch positions", err, ob.kind())
		return nil, err
	}
	logger.Debug(ctx, "positions fetched", ob.kind(), zap.Int("count", len(pos)))
	return pos, nil
}
