package brokerobs

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/broker/paper"
	"github.com/rustyeddy/tradeassist/logger"
	"github.com/rustyeddy/tradeassist/trace"
)

// Uses the package-level logger and tracer, so not parallel.
func TestWrapRecordsSpansAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger.Set(zap.New(core))
	t.Cleanup(func() { logger.Set(zap.NewNop()) })

	rec := tracetest.NewSpanRecorder()
	trace.InitWithProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = trace.Shutdown(context.Background()) })

	ctx := context.Background()
	b := Wrap(paper.New(decimal.NewFromInt(3000)))
	assert.Same(t, b, Wrap(b))
	assert.Equal(t, broker.KindPaper, b.Kind())

	res, err := b.PlaceOrder(ctx, broker.OrderSpec{
		Symbol:   "AAPL",
		Side:     broker.Buy,
		Quantity: decimal.NewFromInt(60),
		Price:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "AAPL", Side: broker.Buy})
	require.Error(t, err)

	ok, err := b.CancelOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	_, err = b.GetPositions(ctx)
	require.NoError(t, err)

	names := []string{}
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"broker.PlaceOrder",
		"broker.PlaceOrder",
		"broker.CancelOrder",
		"broker.GetAccountSnapshot",
		"broker.GetPositions",
	}, names)

	assert.Equal(t, 1, logs.FilterMessage("trade executed").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to place order").Len())
	for _, e := range logs.All() {
		assert.Equal(t, "paper", e.ContextMap()["broker"], e.Message)
		assert.NotEmpty(t, e.ContextMap()["trace_id"], e.Message)
	}
}
