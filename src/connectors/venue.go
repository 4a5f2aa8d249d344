// REST client for the brokerage venue (Alpaca-style trading API).
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// OrderRequest is the payload sent to the venue when placing an order.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Qty           decimal.Decimal  `json:"qty"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	TimeInForce   string           `json:"time_in_force"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	ClientOrderID string           `json:"client_order_id"`
}

// VenueOrder is a venue-reported order snapshot. The venue is authoritative
// for every field here; delivery ordering is not guaranteed.
type VenueOrder struct {
	ID             string           `json:"id"`
	ClientOrderID  string           `json:"client_order_id"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Type           string           `json:"type"`
	Qty            decimal.Decimal  `json:"qty"`
	FilledQty      decimal.Decimal  `json:"filled_qty"`
	LimitPrice     *decimal.Decimal `json:"limit_price"`
	FilledAvgPrice *decimal.Decimal `json:"filled_avg_price"`
	Status         string           `json:"status"`
	SubmittedAt    *time.Time       `json:"submitted_at"`
	FilledAt       *time.Time       `json:"filled_at"`
	CanceledAt     *time.Time       `json:"canceled_at"`
	UpdatedAt      *time.Time       `json:"updated_at"`
	FailureReason  string           `json:"failure_reason"`
}

// LocalStatus maps the venue status vocabulary onto the ledger's order
// state machine.
func (o *VenueOrder) LocalStatus() string {
	switch o.Status {
	case "new", "accepted", "pending_new", "accepted_for_bidding",
		"pending_cancel", "pending_replace", "replaced", "calculated":
		return model.OrderStatusPending
	case "partially_filled":
		return model.OrderStatusPartiallyFilled
	case "filled":
		return model.OrderStatusFilled
	case "canceled", "expired", "done_for_day", "stopped", "suspended":
		return model.OrderStatusCanceled
	case "rejected":
		return model.OrderStatusRejected
	}
	return model.OrderStatusPending
}

// VenuePosition is a venue-reported live position snapshot.
type VenuePosition struct {
	Symbol        string          `json:"symbol"`
	Qty           decimal.Decimal `json:"qty"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
}

// Quote is the latest trade price for a ticker.
type Quote struct {
	Ticker string
	Price  decimal.Decimal
	At     time.Time
}

// Account is the venue account snapshot, passed through read-only.
type Account struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	Equity         decimal.Decimal `json:"equity"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// Client is the authenticated venue REST client. It is treated as an
// unreliable, rate-limited, eventually consistent remote service: transient
// failures are retried internally with exponential backoff, and every call
// carries a bounded timeout via its context.
type Client struct {
	apiKey    string
	apiSecret string
	http      *resty.Client
	data      *resty.Client
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

// NewClient builds a venue client from credentials and the connector config.
func NewClient(apiKey, apiSecret string) *Client {
	config := GetConfig()
	return NewClientWithURLs(apiKey, apiSecret, config.VenueBaseURL, config.VenueDataURL, config.RequestTimeout)
}

// NewClientWithURLs is the fully parameterized constructor, used by tests
// pointing at a stub server.
func NewClientWithURLs(apiKey, apiSecret, baseURL, dataURL string, timeout time.Duration) *Client {
	retryCount := defaultRetryAttempts - 1

	newHTTP := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetRetryCount(retryCount).
			SetRetryWaitTime(defaultRetryBaseDelay).
			SetRetryMaxWaitTime(defaultRetryMaxBackoff).
			AddRetryCondition(isRetryableResp).
			SetHeader("APCA-API-KEY-ID", apiKey).
			SetHeader("APCA-API-SECRET-KEY", apiSecret)
	}

	return &Client{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      newHTTP(baseURL),
		data:      newHTTP(dataURL),
	}
}

func venueErrorFromResponse(resp *resty.Response) error {
	ve := &VenueError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), ve); err != nil || ve.Message == "" {
		ve.Message = string(resp.Body())
	}
	return ve
}

// PlaceOrder submits an order to the venue. A venue-side rejection comes
// back as a *VenueError with Rejection() true.
func (c *Client) PlaceOrder(ctx context.Context, req *OrderRequest) (*VenueOrder, error) {
	var order VenueOrder

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&order).
		Post("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}

	logger.WithFields(map[string]interface{}{
		"venue_order_id":  order.ID,
		"client_order_id": order.ClientOrderID,
		"symbol":          order.Symbol,
		"side":            order.Side,
		"qty":             order.Qty,
	}).Info("Order placed at venue")

	return &order, nil
}

// CancelOrder requests cancellation of a venue order.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/v2/orders/" + venueOrderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrOrderNotFound
	}
	if resp.IsError() {
		return venueErrorFromResponse(resp)
	}
	return nil
}

// GetOrder fetches a single venue order by its venue-assigned ID.
func (c *Client) GetOrder(ctx context.Context, venueOrderID string) (*VenueOrder, error) {
	var order VenueOrder

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&order).
		Get("/v2/orders/" + venueOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	return &order, nil
}

// GetOrderByClientOrderID fetches a venue order by the locally generated
// client order ID. This is the correlation path that resolves fire-and-forget
// ambiguity after a submission timeout.
func (c *Client) GetOrderByClientOrderID(ctx context.Context, clientOrderID string) (*VenueOrder, error) {
	var order VenueOrder

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("client_order_id", clientOrderID).
		SetResult(&order).
		Get("/v2/orders:by_client_order_id")
	if err != nil {
		return nil, fmt.Errorf("get order by client order id: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	return &order, nil
}

// ListOrders returns venue orders updated after the given watermark, oldest
// first, so the reconciler can advance its cursor monotonically.
func (c *Client) ListOrders(ctx context.Context, after time.Time, limit int) ([]VenueOrder, error) {
	if limit <= 0 {
		limit = 500
	}

	var orders []VenueOrder

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"status":    "all",
			"after":     after.UTC().Format(time.RFC3339Nano),
			"direction": "asc",
			"limit":     fmt.Sprintf("%d", limit),
		}).
		SetResult(&orders).
		Get("/v2/orders")
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	return orders, nil
}

// ListPositions returns the venue's live positions; the authoritative
// quantities for the reconciler's divergence check.
func (c *Client) ListPositions(ctx context.Context) ([]VenuePosition, error) {
	var positions []VenuePosition

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&positions).
		Get("/v2/positions")
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	return positions, nil
}

// GetAccount returns the venue account snapshot.
func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	var account Account

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&account).
		Get("/v2/account")
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	return &account, nil
}

// GetQuote returns the latest trade price for an equity ticker from the
// venue's data endpoint.
func (c *Client) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	var payload struct {
		Symbol string `json:"symbol"`
		Trade  struct {
			Price     decimal.Decimal `json:"p"`
			Timestamp time.Time       `json:"t"`
		} `json:"trade"`
	}

	resp, err := c.data.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/v2/stocks/" + ticker + "/trades/latest")
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrQuoteUnavailable
	}
	if resp.IsError() {
		return nil, venueErrorFromResponse(resp)
	}
	if payload.Trade.Price.IsZero() {
		return nil, ErrQuoteUnavailable
	}

	return &Quote{
		Ticker: ticker,
		Price:  payload.Trade.Price,
		At:     payload.Trade.Timestamp,
	}, nil
}
