package robinhood

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeassist/broker"
)

func testClient(url, account string) *Client {
	c := NewClient("tok", account)
	c.baseURL = url
	c.httpClient = &http.Client{Timeout: 5 * time.Second}
	return c
}

// fakeAPI serves the handful of endpoints the client uses. Instrument
// lookups are counted so tests can check the cache.
type fakeAPI struct {
	srv     *httptest.Server
	lookups atomic.Int32
	order   orderRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	mux := http.NewServeMux()

	mux.HandleFunc("/accounts/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"next":null,"results":[
			{"url":"%[1]s/accounts/A1/","account_number":"A1","cash":"100.00","buying_power":"100.00"},
			{"url":"%[1]s/accounts/B2/","account_number":"B2","cash":"2500.00","buying_power":"5000.00"}]}`, f.srv.URL)
	})
	mux.HandleFunc("/portfolios/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"equity":"3100.00","market_value":"600.00"}]}`))
	})
	mux.HandleFunc("/instruments/", func(w http.ResponseWriter, r *http.Request) {
		f.lookups.Add(1)
		if r.URL.Path == "/instruments/aapl-id/" {
			fmt.Fprintf(w, `{"url":"%s/instruments/aapl-id/","symbol":"AAPL"}`, f.srv.URL)
			return
		}
		if r.URL.Query().Get("symbol") != "AAPL" {
			_, _ = w.Write([]byte(`{"results":[]}`))
			return
		}
		fmt.Fprintf(w, `{"results":[{"url":"%s/instruments/aapl-id/","symbol":"AAPL"}]}`, f.srv.URL)
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.order))
			_, _ = w.Write([]byte(`{"id":"rh-1","side":"buy","quantity":"60.00000000",
				"cumulative_quantity":"60.00000000","average_price":"10.01","state":"filled",
				"created_at":"2026-01-05T15:00:00Z"}`))
		case "/orders/rh-1/cancel/":
			_, _ = w.Write([]byte(`{}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/positions/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("nonzero"))
		fmt.Fprintf(w, `{"results":[{"instrument":"%s/instruments/aapl-id/","quantity":"60.0000",
			"average_buy_price":"10.0000","shares_held_for_sells":"0"}]}`, f.srv.URL)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestGetAccountSnapshotPicksAccount(t *testing.T) {
	t.Parallel()
	f := newFakeAPI(t)

	snap, err := testClient(f.srv.URL, "B2").GetAccountSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, broker.KindRobinhood, snap.Broker)
	assert.Equal(t, "B2", snap.AccountID)
	assert.True(t, decimal.RequireFromString("5000").Equal(snap.BuyingPower))
	assert.True(t, decimal.RequireFromString("3100").Equal(snap.Equity))
	assert.True(t, decimal.RequireFromString("600").Equal(snap.PositionsValue))

	_, err = testClient(f.srv.URL, "ZZ").GetAccountSnapshot(context.Background())
	assert.ErrorIs(t, err, broker.ErrBroker)
}

func TestPlaceOrderResolvesInstrument(t *testing.T) {
	t.Parallel()
	f := newFakeAPI(t)
	c := testClient(f.srv.URL, "B2")

	spec := broker.OrderSpec{
		Symbol:   "aapl",
		Side:     broker.Buy,
		Quantity: decimal.NewFromInt(60),
		Price:    decimal.RequireFromString("10.005"),
	}
	res, err := c.PlaceOrder(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, "rh-1", res.ID)
	assert.True(t, res.Filled())
	assert.Equal(t, "AAPL", res.Symbol)
	assert.True(t, decimal.RequireFromString("10.01").Equal(res.FillPrice))

	assert.Equal(t, f.srv.URL+"/accounts/B2/", f.order.Account)
	assert.Equal(t, f.srv.URL+"/instruments/aapl-id/", f.order.Instrument)
	assert.Equal(t, "market", f.order.Type)
	assert.Equal(t, "gfd", f.order.TimeInForce)
	assert.Equal(t, "immediate", f.order.Trigger)
	assert.Equal(t, "10.01", f.order.Price)

	_, err = c.PlaceOrder(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.lookups.Load())
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	t.Parallel()
	f := newFakeAPI(t)

	_, err := testClient(f.srv.URL, "").PlaceOrder(context.Background(), broker.OrderSpec{
		Symbol: "NOPE", Side: broker.Buy, Quantity: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.ErrorIs(t, err, broker.ErrBroker)
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	f := newFakeAPI(t)
	c := testClient(f.srv.URL, "")

	ok, err := c.CancelOrder(context.Background(), "rh-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CancelOrder(context.Background(), "gone")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetPositionsResolvesSymbols(t *testing.T) {
	t.Parallel()
	f := newFakeAPI(t)
	c := testClient(f.srv.URL, "")

	for i := 0; i < 2; i++ {
		pos, err := c.GetPositions(context.Background())
		require.NoError(t, err)
		require.Len(t, pos, 1)
		assert.Equal(t, "AAPL", pos[0].Symbol)
		assert.True(t, decimal.NewFromInt(600).Equal(pos[0].MarketValue))
	}
	assert.Equal(t, int32(1), f.lookups.Load())
}
