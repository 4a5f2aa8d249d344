// Package valuation derives market value and unrealized P&L figures from
// reconciled positions and cached quotes. All calculations are pure and use
// exact decimal arithmetic.
package valuation

import (
	"time"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

var hundred = decimal.NewFromInt(100)

// PositionView is a valued snapshot of one strategy position.
type PositionView struct {
	StrategyName  string          `json:"strategy_name"`
	Ticker        string          `json:"ticker"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	MarkPrice     decimal.Decimal `json:"mark_price"`
	QuoteStale    bool            `json:"quote_stale"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPL  decimal.Decimal `json:"unrealized_pl"`
	// UnrealizedPLPct is zero when the cost basis is zero; a percentage
	// against nothing is meaningless.
	UnrealizedPLPct decimal.Decimal `json:"unrealized_pl_pct"`
}

// Summary aggregates valued positions across one or all strategies. The net
// percentage is derived from the summed bases, not averaged per position.
type Summary struct {
	Positions         []PositionView  `json:"positions"`
	TotalCostBasis    decimal.Decimal `json:"total_cost_basis"`
	TotalMarketValue  decimal.Decimal `json:"total_market_value"`
	TotalUnrealizedPL decimal.Decimal `json:"total_unrealized_pl"`
	UnrealizedPLPct   decimal.Decimal `json:"unrealized_pl_pct"`
	AsOf              time.Time       `json:"as_of"`
}

// Valuate prices one position. When the cached quote is missing or older
// than maxAge the position is marked stale and valued at its average entry
// price, which pins unrealized P&L to zero rather than reporting a number
// computed from a dead quote.
func Valuate(pos *model.Position, now time.Time, maxAge time.Duration) PositionView {
	mark := pos.CurrentPrice
	stale := pos.QuoteAt == nil ||
		now.Sub(*pos.QuoteAt) > maxAge ||
		mark.IsZero()
	if stale {
		mark = pos.AvgEntryPrice
	}

	costBasis := pos.Quantity.Mul(pos.AvgEntryPrice)
	marketValue := pos.Quantity.Mul(mark)
	pl := marketValue.Sub(costBasis)

	plPct := decimal.Zero
	if !costBasis.IsZero() {
		plPct = pl.Div(costBasis.Abs()).Mul(hundred)
	}

	return PositionView{
		StrategyName:    pos.StrategyName,
		Ticker:          pos.Ticker,
		Quantity:        pos.Quantity,
		AvgEntryPrice:   pos.AvgEntryPrice,
		MarkPrice:       mark,
		QuoteStale:      stale,
		CostBasis:       costBasis,
		MarketValue:     marketValue,
		UnrealizedPL:    pl,
		UnrealizedPLPct: plPct,
	}
}

// Aggregate values each position and sums the totals.
func Aggregate(positions []model.Position, now time.Time, maxAge time.Duration) Summary {
	summary := Summary{
		Positions:         make([]PositionView, 0, len(positions)),
		TotalCostBasis:    decimal.Zero,
		TotalMarketValue:  decimal.Zero,
		TotalUnrealizedPL: decimal.Zero,
		AsOf:              now,
	}

	for i := range positions {
		view := Valuate(&positions[i], now, maxAge)
		summary.Positions = append(summary.Positions, view)
		summary.TotalCostBasis = summary.TotalCostBasis.Add(view.CostBasis)
		summary.TotalMarketValue = summary.TotalMarketValue.Add(view.MarketValue)
		summary.TotalUnrealizedPL = summary.TotalUnrealizedPL.Add(view.UnrealizedPL)
	}

	if !summary.TotalCostBasis.IsZero() {
		summary.UnrealizedPLPct = summary.TotalUnrealizedPL.
			Div(summary.TotalCostBasis.Abs()).
			Mul(hundred)
	}
	return summary
}
