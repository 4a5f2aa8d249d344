package reconciler

import (
	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

// ApplyFill folds a signed fill delta into a position and returns the new
// quantity and average entry price.
//
// Rules:
//   - enlarging in the same direction recomputes the average entry price as
//     a quantity-weighted average of old and new cost;
//   - reducing keeps the entry price for the remaining quantity (the
//     realized gain stays derivable from the order history);
//   - a sign flip resets the entry price to the fill price of the flip.
func ApplyFill(quantity, avgEntryPrice, signedDelta, fillPrice decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if signedDelta.IsZero() {
		return quantity, avgEntryPrice
	}

	newQty := quantity.Add(signedDelta)

	switch {
	case quantity.IsZero():
		return newQty, fillPrice

	case quantity.Sign() == signedDelta.Sign():
		// Enlarging: weight old cost against the new fill.
		oldCost := quantity.Abs().Mul(avgEntryPrice)
		addCost := signedDelta.Abs().Mul(fillPrice)
		return newQty, oldCost.Add(addCost).Div(newQty.Abs())

	case newQty.IsZero() || newQty.Sign() == quantity.Sign():
		// Reducing (or an exact close): entry price is retained.
		return newQty, avgEntryPrice

	default:
		// Sign flip: the surviving quantity was opened at the fill price.
		return newQty, fillPrice
	}
}

// fillDelta computes the unsigned newly observed fill quantity between the
// ledger row and a venue snapshot. Negative deltas (regressive reports)
// come back as zero.
func fillDelta(local *model.Order, venueFilled decimal.Decimal) decimal.Decimal {
	delta := venueFilled.Sub(local.FilledQuantity)
	if delta.IsNegative() {
		return decimal.Zero
	}
	return delta
}

// deltaFillPrice derives the price of the newly filled slice from the
// order's previous and current cumulative average fill prices. Falls back
// to the current average when the previous state gives no information.
func deltaFillPrice(prevFilled decimal.Decimal, prevAvg *decimal.Decimal, newFilled decimal.Decimal, newAvg *decimal.Decimal) decimal.Decimal {
	if newAvg == nil {
		return decimal.Zero
	}
	delta := newFilled.Sub(prevFilled)
	if !delta.IsPositive() || prevAvg == nil || prevFilled.IsZero() {
		return *newAvg
	}

	newCost := newFilled.Mul(*newAvg)
	prevCost := prevFilled.Mul(*prevAvg)
	price := newCost.Sub(prevCost).Div(delta)
	if !price.IsPositive() {
		// Degenerate venue data; the cumulative average is still sane.
		return *newAvg
	}
	return price
}
