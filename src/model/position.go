package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is one row per (strategy_name, ticker). Quantity is signed,
// positive means long. A zero quantity row is economically closed but is
// retained for history.
type Position struct {
	ID uint `gorm:"primaryKey" json:"id"`

	StrategyName string `gorm:"size:64;not null;uniqueIndex:ux_positions_strategy_ticker,priority:1" json:"strategy_name"`
	Ticker       string `gorm:"size:32;not null;uniqueIndex:ux_positions_strategy_ticker,priority:2" json:"ticker"`

	Quantity      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"avg_entry_price"`

	// CurrentPrice is a cached quote and may be stale; QuoteAt bounds its
	// freshness for the valuation fallback.
	CurrentPrice decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"current_price"`
	QuoteAt      *time.Time      `json:"quote_at,omitempty"`

	LastUpdated time.Time `gorm:"not null" json:"last_updated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Position) TableName() string {
	return "portfolio_positions"
}

// IsFlat reports whether the position is economically closed.
func (p *Position) IsFlat() bool {
	return p.Quantity.IsZero()
}
