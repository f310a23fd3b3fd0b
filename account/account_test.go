package account

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeassist/broker"
	"github.com/rustyeddy/tradeassist/ledger"
	"github.com/rustyeddy/tradeassist/risk"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newModel() *Model {
	return New(d("3000"), risk.DefaultPolicy(), WithClock(fixedClock()))
}

func TestNewSeedsPaperAccount(t *testing.T) {
	t.Parallel()

	s := newModel().Snapshot()
	assert.True(t, d("3000").Equal(s.CurrentBalance))
	assert.True(t, d("3000").Equal(s.BuyingPower))
	assert.True(t, d("3000").Equal(s.HighWaterMark))
	assert.True(t, d("300").Equal(s.CashReserve))
	assert.Equal(t, broker.KindPaper, s.Broker)
	assert.Zero(t, s.Drawdown)
}

func TestRefreshPaperFromLedger(t *testing.T) {
	t.Parallel()

	m := newModel()
	records := []ledger.TradeRecord{
		{Symbol: "AAPL", EntryPrice: d("10"), PositionSize: d("60"), Status: ledger.StatusOpen},
		{Symbol: "MSFT", EntryPrice: d("400"), PositionSize: d("1"), Status: ledger.StatusPartiallyClosed},
		{Symbol: "TSLA", EntryPrice: d("200"), PositionSize: d("2"), Status: ledger.StatusClosed,
			ProfitLoss: decimal.NewNullDecimal(d("-40"))},
	}
	marks := map[string]decimal.Decimal{"AAPL": d("11")}

	s := m.RefreshFromBroker(nil, records, marks)
	assert.True(t, d("-40").Equal(s.RealizedPL))
	assert.True(t, d("60").Equal(s.UnrealizedPL))
	assert.True(t, d("1060").Equal(s.TotalPositionsValue))
	assert.True(t, d("3020").Equal(s.CurrentBalance))
	assert.True(t, d("1960").Equal(s.BuyingPower))
	assert.True(t, d("302").Equal(s.CashReserve))
	assert.True(t, d("3020").Equal(s.HighWaterMark))
	assert.True(t, d("20").Equal(s.TotalPL()))
	assert.InDelta(t, 0.6667, s.TotalPLPercent(), 0.001)
}

func TestRefreshIgnoresPaperSnapshot(t *testing.T) {
	t.Parallel()

	m := newModel()
	snap := &broker.AccountSnapshot{Broker: broker.KindPaper, Equity: d("99999"), BuyingPower: d("99999")}
	s := m.RefreshFromBroker(snap, nil, nil)
	assert.True(t, d("3000").Equal(s.CurrentBalance))
}

func TestRefreshLiveSnapshotIsAuthoritative(t *testing.T) {
	t.Parallel()

	m := newModel()
	snap := &broker.AccountSnapshot{
		Broker:         broker.KindAlpaca,
		Equity:         d("5000"),
		BuyingPower:    d("8000"),
		PositionsValue: d("1200"),
		UnrealizedPL:   d("25"),
	}
	records := []ledger.TradeRecord{
		{Symbol: "X", EntryPrice: d("10"), PositionSize: d("5"), Status: ledger.StatusClosed,
			ProfitLoss: decimal.NewNullDecimal(d("15"))},
	}

	s := m.RefreshFromBroker(snap, records, nil)
	assert.Equal(t, broker.KindAlpaca, s.Broker)
	assert.True(t, d("5000").Equal(s.CurrentBalance))
	assert.True(t, d("8000").Equal(s.BuyingPower))
	assert.True(t, d("1200").Equal(s.TotalPositionsValue))
	assert.True(t, d("25").Equal(s.UnrealizedPL))
	assert.True(t, d("15").Equal(s.RealizedPL))
	assert.True(t, d("500").Equal(s.CashReserve))
}

func TestLiveSnapshotResetsHighWaterMark(t *testing.T) {
	t.Parallel()

	m := newModel()
	s := m.RefreshFromBroker(&broker.AccountSnapshot{Broker: broker.KindAlpaca, Equity: d("1000"), BuyingPower: d("1000")}, nil, nil)
	assert.True(t, d("1000").Equal(s.HighWaterMark))
	assert.Zero(t, s.Drawdown)

	s = m.RefreshFromBroker(&broker.AccountSnapshot{Broker: broker.KindAlpaca, Equity: d("1200"), BuyingPower: d("1200")}, nil, nil)
	assert.True(t, d("1200").Equal(s.HighWaterMark))

	// Only the first live snapshot restarts the mark.
	s = m.RefreshFromBroker(&broker.AccountSnapshot{Broker: broker.KindAlpaca, Equity: d("900"), BuyingPower: d("900")}, nil, nil)
	assert.True(t, d("1200").Equal(s.HighWaterMark))
	assert.InDelta(t, 25.0, s.Drawdown, 1e-9)
}

func TestHighWaterMarkNeverDecreases(t *testing.T) {
	t.Parallel()

	m := newModel()
	win := []ledger.TradeRecord{{Symbol: "A", Status: ledger.StatusClosed, ProfitLoss: decimal.NewNullDecimal(d("1000"))}}
	loss := []ledger.TradeRecord{{Symbol: "A", Status: ledger.StatusClosed, ProfitLoss: decimal.NewNullDecimal(d("-600"))}}

	s := m.RefreshFromBroker(nil, win, nil)
	assert.True(t, d("4000").Equal(s.HighWaterMark))
	assert.Zero(t, s.Drawdown)

	s = m.RefreshFromBroker(nil, loss, nil)
	assert.True(t, d("2400").Equal(s.CurrentBalance))
	assert.True(t, d("4000").Equal(s.HighWaterMark))
	assert.InDelta(t, 40.0, s.Drawdown, 1e-9)

	s = m.UpdateHighWaterMarkAndDrawdown()
	assert.True(t, d("4000").Equal(s.HighWaterMark))
}

func TestCalculatePositionSizeScenarioA(t *testing.T) {
	t.Parallel()

	res, err := newModel().CalculatePositionSize(d("10.00"), d("9.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.Shares)
	assert.True(t, d("600").Equal(res.PositionValue))
	assert.True(t, d("30").Equal(res.RiskAmount))
	assert.InDelta(t, 20.0, res.PositionPercent, 1e-9)

	_, err = newModel().CalculatePositionSize(d("10"), d("10"))
	assert.True(t, errors.Is(err, risk.ErrInvalidRisk))
}

func TestCheckTradeAllowed(t *testing.T) {
	t.Parallel()

	m := newModel()
	a := m.CheckTradeAllowed(d("600"), d("30"))
	assert.True(t, a.Allowed)
	assert.Len(t, a.Checks, 5)
	assert.NoError(t, a.Err())

	// 2800 leaves 200 of buying power, under the 300 reserve.
	a = m.CheckTradeAllowed(d("2800"), d("30"))
	assert.False(t, a.Allowed)
	assert.False(t, a.Checks[risk.GateCashReserve])
	assert.False(t, a.Checks[risk.GatePositionLimit])
	assert.True(t, a.Checks[risk.GateBuyingPower])
	assert.ErrorIs(t, a.Err(), risk.ErrRiskLimitExceeded)
}

func TestDailyLossGateUsesUnrealized(t *testing.T) {
	t.Parallel()

	m := newModel()
	open := []ledger.TradeRecord{{Symbol: "A", EntryPrice: d("10"), PositionSize: d("100"), Status: ledger.StatusOpen}}
	m.RefreshFromBroker(nil, open, map[string]decimal.Decimal{"A": d("9")})

	a := m.CheckTradeAllowed(d("100"), d("5"))
	assert.False(t, a.Checks[risk.GateDailyLoss])
	assert.InDelta(t, -3.3333, a.DayPLPercent, 0.001)
}
