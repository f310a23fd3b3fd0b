package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradeassist/broker"
)

func testClient(url string) *Client {
	return &Client{
		baseURL:    url,
		keyID:      "key",
		secret:     "secret",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PaperURL, NewClient("k", "s", "paper").baseURL)
	assert.Equal(t, PaperURL, NewClient("k", "s", "").baseURL)
	assert.Equal(t, LiveURL, NewClient("k", "s", "LIVE").baseURL)
}

func TestGetAccountSnapshot(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		switch r.URL.Path {
		case "/v2/account":
			_, _ = w.Write([]byte(`{"id":"acct-1","status":"ACTIVE","cash":"2400.00","equity":"3060.00",
				"buying_power":"4800.00","long_market_value":"660.00","short_market_value":"0"}`))
		case "/v2/positions":
			_, _ = w.Write([]byte(`[{"symbol":"AAPL","qty":"60","avg_entry_price":"10","current_price":"11",
				"market_value":"660","unrealized_pl":"60","unrealized_plpc":"0.1"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	snap, err := testClient(srv.URL).GetAccountSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, broker.KindAlpaca, snap.Broker)
	assert.Equal(t, "acct-1", snap.AccountID)
	assert.True(t, decimal.RequireFromString("3060").Equal(snap.Equity))
	assert.True(t, decimal.RequireFromString("4800").Equal(snap.BuyingPower))
	assert.True(t, decimal.RequireFromString("660").Equal(snap.PositionsValue))
	assert.True(t, decimal.RequireFromString("60").Equal(snap.UnrealizedPL))
}

func TestGetAccountSnapshotUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"forbidden"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).GetAccountSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, broker.ErrBroker)

	var be *broker.Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusUnauthorized, be.Status)
	assert.Equal(t, broker.KindAlpaca, be.Broker)
	assert.Contains(t, be.Error(), "forbidden")
}

func TestPlaceOrder(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)

		var req orderRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Symbol)
		assert.Equal(t, "60", req.Qty)
		assert.Equal(t, "buy", req.Side)
		assert.Equal(t, "limit", req.Type)
		assert.Equal(t, "day", req.TimeInForce)
		assert.Equal(t, "10.5", req.LimitPrice)

		_, _ = w.Write([]byte(`{"id":"ord-1","symbol":"AAPL","side":"buy","qty":"60","filled_qty":"60",
			"filled_avg_price":"10.49","status":"filled","submitted_at":"2026-01-05T15:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).PlaceOrder(context.Background(), broker.OrderSpec{
		Symbol:   "aapl",
		Side:     broker.Buy,
		Quantity: decimal.NewFromInt(60),
		Type:     broker.Limit,
		Price:    decimal.RequireFromString("10.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.ID)
	assert.True(t, res.Filled())
	assert.True(t, decimal.RequireFromString("10.49").Equal(res.FillPrice))
}

func TestPlaceOrderPendingHasNoFillPrice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"ord-2","symbol":"AAPL","side":"sell","qty":"5","filled_qty":"0",
			"filled_avg_price":null,"status":"new","submitted_at":"2026-01-05T15:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).PlaceOrder(context.Background(), broker.OrderSpec{
		Symbol: "AAPL", Side: broker.Sell, Quantity: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, broker.StatusAccepted, res.Status)
	assert.True(t, res.FillPrice.IsZero())
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{"canceled", http.StatusNoContent, true, false},
		{"unknown", http.StatusNotFound, false, false},
		{"not cancelable", http.StatusUnprocessableEntity, false, false},
		{"server error", http.StatusInternalServerError, false, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				assert.Equal(t, "/v2/orders/ord-1", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			ok, err := testClient(srv.URL).CancelOrder(context.Background(), "ord-1")
			if tt.wantErr {
				assert.ErrorIs(t, err, broker.ErrBroker)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestGetPositions(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"symbol":"MSFT","qty":"3","avg_entry_price":"400","current_price":"410",
			"market_value":"1230","unrealized_pl":"30","unrealized_plpc":"0.025"}]`))
	}))
	defer srv.Close()

	pos, err := testClient(srv.URL).GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, "MSFT", pos[0].Symbol)
	assert.True(t, decimal.NewFromInt(3).Equal(pos[0].Quantity))
	assert.True(t, decimal.NewFromInt(30).Equal(pos[0].UnrealizedPL))
}

func TestMapStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, broker.StatusFilled, mapStatus("filled"))
	assert.Equal(t, broker.StatusPartial, mapStatus("partially_filled"))
	assert.Equal(t, broker.StatusAccepted, mapStatus("pending_new"))
	assert.Equal(t, broker.StatusCanceled, mapStatus("expired"))
	assert.Equal(t, broker.StatusRejected, mapStatus("rejected"))
	assert.Equal(t, broker.StatusUnknown, mapStatus("weird"))
}
