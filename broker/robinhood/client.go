package robinhood

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/tradeassist/broker"
)

const BaseURL = "https://api.robinhood.com"

var ErrUnknownSymbol = errors.New("unknown symbol")

// Client talks to the Robinhood REST API with a pre-issued bearer token.
// The interactive login and MFA flow is not handled here.
type Client struct {
	baseURL    string
	token      string
	account    string
	httpClient *http.Client

	mu          sync.Mutex
	instruments map[string]string // url -> symbol
	symbols     map[string]string // symbol -> url
}

func NewClient(token, account string) *Client {
	return &Client{
		baseURL: BaseURL,
		token:   token,
		account: account,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		instruments: make(map[string]string),
		symbols:     make(map[string]string),
	}
}

var _ broker.Broker = (*Client)(nil)

func (c *Client) Kind() broker.Kind {
	return broker.KindRobinhood
}

type page[T any] struct {
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

type apiAccount struct {
	URL           string          `json:"url"`
	AccountNumber string          `json:"account_number"`
	Cash          decimal.Decimal `json:"cash"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
}

type apiPortfolio struct {
	Equity      decimal.Decimal `json:"equity"`
	MarketValue decimal.Decimal `json:"market_value"`
}

type apiInstrument struct {
	URL    string `json:"url"`
	Symbol string `json:"symbol"`
}

type apiOrder struct {
	ID                 string           `json:"id"`
	Instrument         string           `json:"instrument"`
	Side               string           `json:"side"`
	Quantity           decimal.Decimal  `json:"quantity"`
	CumulativeQuantity decimal.Decimal  `json:"cumulative_quantity"`
	AveragePrice       *decimal.Decimal `json:"average_price"`
	State              string           `json:"state"`
	CreatedAt          time.Time        `json:"created_at"`
}

type apiPosition struct {
	Instrument         string          `json:"instrument"`
	Quantity           decimal.Decimal `json:"quantity"`
	AverageBuyPrice    decimal.Decimal `json:"average_buy_price"`
	SharesHeldForSells decimal.Decimal `json:"shares_held_for_sells"`
}

type orderRequest struct {
	Account     string `json:"account"`
	Instrument  string `json:"instrument"`
	Symbol      string `json:"symbol"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
	Trigger     string `json:"trigger"`
	Quantity    string `json:"quantity"`
	Side        string `json:"side"`
	Price       string `json:"price,omitempty"`
	RefID       string `json:"ref_id,omitempty"`
}

func (c *Client) GetAccountSnapshot(ctx context.Context) (broker.AccountSnapshot, error) {
	acct, err := c.loadAccount(ctx)
	if err != nil {
		return broker.AccountSnapshot{}, err
	}

	var portfolios page[apiPortfolio]
	if _, err := c.do(ctx, "portfolio", http.MethodGet, "/portfolios/", nil, &portfolios); err != nil {
		return broker.AccountSnapshot{}, err
	}
	if len(portfolios.Results) == 0 {
		return broker.AccountSnapshot{}, broker.Wrap(broker.KindRobinhood, "portfolio", errors.New("no portfolio"))
	}
	pf := portfolios.Results[0]

	return broker.AccountSnapshot{
		Broker:         broker.KindRobinhood,
		AccountID:      acct.AccountNumber,
		Cash:           acct.Cash,
		Equity:         pf.Equity,
		BuyingPower:    acct.BuyingPower,
		PositionsValue: pf.MarketValue,
		Time:           time.Now(),
	}, nil
}

func (c *Client) loadAccount(ctx context.Context) (apiAccount, error) {
	var accounts page[apiAccount]
	if _, err := c.do(ctx, "account", http.MethodGet, "/accounts/", nil, &accounts); err != nil {
		return apiAccount{}, err
	}
	for _, a := range accounts.Results {
		if c.account == "" || a.AccountNumber == c.account {
			return a, nil
		}
	}
	return apiAccount{}, broker.Wrap(broker.KindRobinhood, "account", fmt.Errorf("account %q not found", c.account))
}

// instrumentURL resolves a ticker to the instrument URL orders are placed
// against.
func (c *Client) instrumentURL(ctx context.Context, symbol string) (string, error) {
	c.mu.Lock()
	u, ok := c.symbols[symbol]
	c.mu.Unlock()
	if ok {
		return u, nil
	}

	var res page[apiInstrument]
	path := "/instruments/?symbol=" + url.QueryEscape(symbol)
	if _, err := c.do(ctx, "instrument", http.MethodGet, path, nil, &res); err != nil {
		return "", err
	}
	if len(res.Results) == 0 {
		return "", broker.Wrap(broker.KindRobinhood, "instrument", fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol))
	}
	c.remember(res.Results[0])
	return res.Results[0].URL, nil
}

// symbolFor resolves an instrument URL back to its ticker.
func (c *Client) symbolFor(ctx context.Context, instrument string) (string, error) {
	c.mu.Lock()
	s, ok := c.instruments[instrument]
	c.mu.Unlock()
	if ok {
		return s, nil
	}

	var inst apiInstrument
	if _, err := c.doURL(ctx, "instrument", http.MethodGet, instrument, nil, &inst); err != nil {
		return "", err
	}
	c.remember(inst)
	return inst.Symbol, nil
}

func (c *Client) remember(inst apiInstrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[inst.URL] = inst.Symbol
	c.symbols[inst.Symbol] = inst.URL
}

func (c *Client) PlaceOrder(ctx context.Context, spec broker.OrderSpec) (broker.OrderResult, error) {
	if err := spec.Validate(); err != nil {
		return broker.OrderResult{}, broker.Wrap(broker.KindRobinhood, "place order", err)
	}
	symbol := strings.ToUpper(spec.Symbol)

	acct, err := c.loadAccount(ctx)
	if err != nil {
		return broker.OrderResult{}, err
	}
	inst, err := c.instrumentURL(ctx, symbol)
	if err != nil {
		return broker.OrderResult{}, err
	}

	typ := spec.Type
	if typ == "" {
		typ = broker.Market
	}
	tif := spec.TimeInForce
	if tif == "" {
		tif = "gfd"
	}
	req := orderRequest{
		Account:     acct.URL,
		Instrument:  inst,
		Symbol:      symbol,
		Type:        string(typ),
		TimeInForce: tif,
		Trigger:     "immediate",
		Quantity:    spec.Quantity.String(),
		Side:        string(spec.Side),
		RefID:       spec.ClientID,
	}
	// Robinhood wants a collar price on market orders too.
	if spec.Price.IsPositive() {
		req.Price = spec.Price.StringFixed(2)
	}

	var o apiOrder
	if _, err := c.do(ctx, "place order", http.MethodPost, "/orders/", req, &o); err != nil {
		return broker.OrderResult{}, err
	}
	res := broker.OrderResult{
		ID:             o.ID,
		Broker:         broker.KindRobinhood,
		Symbol:         symbol,
		Side:           broker.Side(o.Side),
		Quantity:       o.Quantity,
		FilledQuantity: o.CumulativeQuantity,
		Status:         mapState(o.State),
		SubmittedAt:    o.CreatedAt,
	}
	if o.AveragePrice != nil {
		res.FillPrice = *o.AveragePrice
	}
	return res, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	path := "/orders/" + url.PathEscape(orderID) + "/cancel/"
	status, err := c.do(ctx, "cancel order", http.MethodPost, path, struct{}{}, nil)
	if err == nil {
		return true, nil
	}
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		return false, nil
	}
	return false, err
}

func (c *Client) GetPositions(ctx context.Context) ([]broker.BrokerPosition, error) {
	var res page[apiPosition]
	if _, err := c.do(ctx, "positions", http.MethodGet, "/positions/?nonzero=true", nil, &res); err != nil {
		return nil, err
	}
	out := make([]broker.BrokerPosition, 0, len(res.Results))
	for _, p := range res.Results {
		sym, err := c.symbolFor(ctx, p.Instrument)
		if err != nil {
			return nil, err
		}
		out = append(out, broker.BrokerPosition{
			Symbol:        sym,
			Quantity:      p.Quantity,
			AvgEntryPrice: p.AverageBuyPrice,
			MarketValue:   p.Quantity.Mul(p.AverageBuyPrice),
		})
	}
	return out, nil
}

func mapState(s string) broker.OrderStatus {
	switch s {
	case "filled":
		return broker.StatusFilled
	case "partially_filled":
		return broker.StatusPartial
	case "queued", "unconfirmed", "confirmed":
		return broker.StatusAccepted
	case "cancelled", "canceled":
		return broker.StatusCanceled
	case "rejected", "failed":
		return broker.StatusRejected
	default:
		return broker.StatusUnknown
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) (int, error) {
	return c.doURL(ctx, op, method, c.baseURL+path, body, out)
}

// doURL performs one API call against an absolute URL. Instrument links in
// Robinhood payloads are absolute, so lookups follow them as given.
func (c *Client) doURL(ctx context.Context, op, method, u string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, broker.Wrap(broker.KindRobinhood, op, fmt.Errorf("encode request: %w", err))
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return 0, broker.Wrap(broker.KindRobinhood, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, broker.Wrap(broker.KindRobinhood, op, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &broker.Error{
			Broker: broker.KindRobinhood,
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
			Broker: broker.KindRobinhood,
			Op:     op,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return resp.StatusCode, nil
}
