package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status constants represent the lifecycle of a submission attempt.
// Terminal states (filled, canceled, rejected) never transition further.
const (
	OrderStatusSubmitted       = "submitted"
	OrderStatusPending         = "pending"
	OrderStatusPartiallyFilled = "partially_filled"
	OrderStatusFilled          = "filled"
	OrderStatusCanceled        = "canceled"
	OrderStatusRejected        = "rejected"
)

const (
	OrderSideBuy  = "buy"
	OrderSideSell = "sell"
)

const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

const (
	AssetClassEquity = "equity"
	AssetClassCrypto = "crypto"
)

const (
	TimeInForceDay = "day"
	TimeInForceGTC = "gtc"
)

// Order is one row per submission attempt. Rows are created by the trading
// gate at submission time, mutated only by the reconciler afterwards, and
// never deleted (append-only audit).
type Order struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// VenueOrderID is assigned by the venue and stays nil until the venue
	// accepts the submission.
	VenueOrderID  *string `gorm:"size:64;uniqueIndex" json:"venue_order_id,omitempty"`
	ClientOrderID string  `gorm:"size:64;not null;uniqueIndex" json:"client_order_id"`

	StrategyName string `gorm:"size:64;not null;index" json:"strategy_name"`
	Ticker       string `gorm:"size:32;not null;index" json:"ticker"`
	Side         string `gorm:"size:8;not null" json:"side"`
	OrderType    string `gorm:"size:16;not null" json:"order_type"`
	AssetClass   string `gorm:"size:16;not null" json:"asset_class"`
	TimeInForce  string `gorm:"size:8;not null" json:"time_in_force"`

	Quantity       decimal.Decimal  `gorm:"type:numeric(30,10);not null" json:"quantity"`
	FilledQuantity decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0" json:"filled_quantity"`
	LimitPrice     *decimal.Decimal `gorm:"type:numeric(30,10)" json:"limit_price,omitempty"`
	FilledAvgPrice *decimal.Decimal `gorm:"type:numeric(30,10)" json:"filled_avg_price,omitempty"`
	Commission     decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0" json:"commission"`

	Status string `gorm:"size:32;not null;default:submitted;index" json:"status"`

	// VenueMessage holds the venue-supplied error on rejection.
	VenueMessage string `gorm:"size:512" json:"venue_message,omitempty"`

	SubmittedAt time.Time  `gorm:"not null;index" json:"submitted_at"`
	FilledAt    *time.Time `json:"filled_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName allows you to control the exact table name for orders.
func (Order) TableName() string {
	return "orders"
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return OrderStatusIsTerminal(o.Status)
}

func OrderStatusIsTerminal(status string) bool {
	switch status {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	}
	return false
}

// SignedQuantity returns the position delta contributed by a fill:
// positive for buys, negative for sells.
func SignedQuantity(side string, qty decimal.Decimal) decimal.Decimal {
	if side == OrderSideSell {
		return qty.Neg()
	}
	return qty
}
