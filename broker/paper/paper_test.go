package paper

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeassist/broker"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPlaceOrderFillsAtRequestedPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := New(d("3000"))
	res, err := b.PlaceOrder(ctx, broker.OrderSpec{
		Symbol:   "AAPL",
		Side:     broker.Buy,
		Quantity: d("60"),
		Type:     broker.Market,
		Price:    d("10.00"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ID, "paper-"))
	assert.Equal(t, broker.StatusFilled, res.Status)
	assert.True(t, d("10").Equal(res.FillPrice))
	assert.True(t, d("60").Equal(res.FilledQuantity))

	snap, err := b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, broker.KindPaper, snap.Broker)
	assert.True(t, d("2400").Equal(snap.Cash))
	assert.True(t, d("3000").Equal(snap.Equity))

	b.Mark("AAPL", d("11"))
	snap, err = b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d("3060").Equal(snap.Equity))
	assert.True(t, d("60").Equal(snap.UnrealizedPL))

	pos, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.True(t, d("660").Equal(pos[0].MarketValue))
}

func TestPlaceOrderIDsUnique(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := New(d("100000"))
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		res, err := b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "X", Side: broker.Buy, Quantity: d("1"), Price: d("1")})
		require.NoError(t, err)
		assert.False(t, seen[res.ID])
		seen[res.ID] = true
	}
}

func TestPlaceOrderRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec broker.OrderSpec
	}{
		{"no symbol", broker.OrderSpec{Side: broker.Buy, Quantity: d("1"), Price: d("1")}},
		{"bad side", broker.OrderSpec{Symbol: "X", Side: "hold", Quantity: d("1"), Price: d("1")}},
		{"zero qty", broker.OrderSpec{Symbol: "X", Side: broker.Buy, Price: d("1")}},
		{"no price", broker.OrderSpec{Symbol: "X", Side: broker.Buy, Quantity: d("1")}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(d("1000")).PlaceOrder(context.Background(), tt.spec)
			assert.ErrorIs(t, err, broker.ErrBroker)
		})
	}
}

func TestSellReducesPosition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := New(d("1000"))
	_, err := b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "X", Side: broker.Buy, Quantity: d("10"), Price: d("10")})
	require.NoError(t, err)
	_, err = b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "X", Side: broker.Buy, Quantity: d("10"), Price: d("20")})
	require.NoError(t, err)

	pos, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.True(t, d("15").Equal(pos[0].AvgEntryPrice))

	_, err = b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "X", Side: broker.Sell, Quantity: d("20"), Price: d("12")})
	require.NoError(t, err)
	pos, err = b.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, pos)

	snap, err := b.GetAccountSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, d("940").Equal(snap.Cash))
}

func TestCancelFilledOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := New(d("1000"))
	res, err := b.PlaceOrder(ctx, broker.OrderSpec{Symbol: "X", Side: broker.Buy, Quantity: d("1"), Price: d("1")})
	require.NoError(t, err)

	ok, err := b.CancelOrder(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.CancelOrder(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	o, found := b.Order(res.ID)
	require.True(t, found)
	assert.Equal(t, broker.StatusFilled, o.Status)
}
