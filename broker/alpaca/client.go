package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeassist/broker"
)

const (
	// PaperURL is Alpaca's paper trading environment.
	PaperURL = "https://paper-api.alpaca.markets"
	// LiveURL is Alpaca's live trading environment.
	LiveURL = "https://api.alpaca.markets"
)

type Client struct {
	baseURL    string
	keyID      string
	secret     string
	httpClient *http.Client
}

// NewClient creates an Alpaca client. env selects the paper or live
// endpoint; anything other than "live" trades on paper.
func NewClient(keyID, secret, env string) *Client {
	baseURL := PaperURL
	if strings.EqualFold(env, "live") {
		baseURL = LiveURL
	}
	return &Client{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ broker.Broker = (*Client)(nil)

func (c *Client) Kind() broker.Kind {
	return broker.KindAlpaca
}

type apiAccount struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Cash           decimal.Decimal `json:"cash"`
	Equity         decimal.Decimal `json:"equity"`
	LastEquity     decimal.Decimal `json:"last_equity"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	LongMarketVal  decimal.Decimal `json:"long_market_value"`
	ShortMarketVal decimal.Decimal `json:"short_market_value"`
}

type apiOrder struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Qty            decimal.Decimal  `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
	Status         string           `json:"status"`
	SubmittedAt    time.Time        `json:"submitted_at"`
}

type apiPosition struct {
	Symbol         string          `json:"symbol"`
	Qty            decimal.Decimal `json:"qty"`
	AvgEntryPrice  decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MarketValue    decimal.Decimal `json:"market_value"`
	UnrealizedPL   decimal.Decimal `json:"unrealized_pl"`
	UnrealizedPLPC decimal.Decimal `json:"unrealized_plpc"`
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	LimitPrice    string `json:"limit_price,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

func (c *Client) GetAccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	var acct apiAccount
	if _, err := c.do(ctx, "account", http.MethodGet, "/v2/account", nil, &acct); err != nil {
		return broker.AccountSnapshot{}, err
	}
	positions := acct.LongMarketVal.Add(acct.ShortMarketVal.Abs())
	return broker.AccountSnapshot{
		Broker:         broker.KindAlpaca,
		AccountID:      acct.ID,
		Cash:           acct.Cash,
		Equity:         acct.Equity,
		BuyingPower:    acct.BuyingPower,
		PositionsValue: positions,
		UnrealizedPL:   c.unrealized(ctx),
		Time:           time.Now(),
	}, nil
}

// unrealized sums open position P&L. The account endpoint does not carry
// it; a failed positions call leaves it at zero.
func (c *Client) unrealized(ctx context.Context) decimal.Decimal {
	var pos []apiPosition
	if _, err := c.do(ctx, "positions", http.MethodGet, "/v2/positions", nil, &pos); err != nil {
		return decimal.Zero
	}
	var sum decimal.Decimal
	for _, p := range pos {
		sum = sum.Add(p.UnrealizedPL)
	}
	return sum
}

func (c *Client) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderResult, error) {
	if err := spec.Validate(); err != nil {
		return broker.OrderResult{}, broker.Wrap(broker.KindAlpaca, "place order", err)
	}
	typ := spec.Type
	if typ == "" {
		typ = broker.Market
	}
	tif := spec.TimeInForce
	if tif == "" {
		tif = "day"
	}
	req := orderRequest{
		Symbol:        strings.ToUpper(spec.Symbol),
		Qty:           spec.Quantity.String(),
		Side:          string(spec.Side),
		Type:          string(typ),
		TimeInForce:   tif,
		ClientOrderID: spec.ClientID,
	}
	if typ == broker.Limit {
		req.LimitPrice = spec.Price.String()
	}

	var o apiOrder
	if _, err := c.do(ctx, "place order", http.MethodPost, "/v2/orders", req, &o); err != nil {
		return broker.OrderResult{}, err
	}
	res := broker.OrderResult{
		ID:             o.ID,
		Broker:         broker.KindAlpaca,
		Symbol:         o.Symbol,
		Side:           broker.Side(o.Side),
		Quantity:       o.Qty,
		FilledQuantity: o.FilledQty,
		Status:         mapStatus(o.Status),
		SubmittedAt:    o.SubmittedAt,
	}
	if o.FilledAvgPrice != nil {
		res.FillPrice = *o.FilledAvgPrice
	}
	return res, nil
}

// CancelOrder returns false when Alpaca reports the order as unknown or no
// longer cancelable.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	status, err := c.do(ctx, "cancel order", http.MethodDelete, "/v2/orders/"+url.PathEscape(orderID), nil, nil)
	if err == nil {
		return true, nil
	}
	if status == http.StatusNotFound || status == http.StatusUnprocessableEntity {
		return false, nil
	}
	return false, err
}

func (c *Client) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var pos []apiPosition
	if _, err := c.do(ctx, "positions", http.MethodGet, "/v2/positions", nil, &pos); err != nil {
		return nil, err
	}
	out := make([]broker.BrokerPosition, 0, len(pos))
	for _, p := range pos {
		out = append(out, broker.BrokerPosition{
			Symbol:        p.Symbol,
			Quantity:      p.Qty,
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentPrice:  p.CurrentPrice,
			MarketValue:   p.MarketValue,
			UnrealizedPL:  p.UnrealizedPL,
		})
	}
	return out, nil
}

func mapStatus(s string) broker.OrderStatus {
	switch s {
	case "filled":
		return broker.StatusFilled
	case "partially_filled":
		return broker.StatusPartial
	case "new", "accepted", "pending_new", "accepted_for_bidding", "held":
		return broker.StatusAccepted
	case "canceled", "expired", "done_for_day", "replaced":
		return broker.StatusCanceled
	case "rejected", "suspended", "stopped":
		return broker.StatusRejected
	default:
		return broker.StatusUnknown
	}
}

// do performs one API call, decoding a 2xx JSON body into out. It returns
// the HTTP status so callers can treat particular codes as non-errors.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, broker.Wrap(broker.KindAlpaca, op, fmt.Errorf("encode request: %w", err))
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, broker.Wrap(broker.KindAlpaca, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, broker.Wrap(broker.KindAlpaca, op, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &broker.Error{
			Broker: broker.KindAlpaca,
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(msg))),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &broker.Error{
			Broker: broker.KindAlpaca,
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return resp.StatusCode, nil
}
