package model

// orderStatusRank orders the lifecycle so that venue reports can only move
// an order forward. All terminal states share the top rank.
var orderStatusRank = map[string]int{
	OrderStatusSubmitted:       0,
	OrderStatusPending:         1,
	OrderStatusPartiallyFilled: 2,
	OrderStatusFilled:          3,
	OrderStatusCanceled:        3,
	OrderStatusRejected:        3,
}

// OrderStatusCanAdvance reports whether a venue-observed status may be
// applied on top of the current one. Re-applying the same non-terminal
// status is allowed (filled_quantity can still grow within
// partially_filled); regressive reports and any mutation of a terminal
// order are not.
func OrderStatusCanAdvance(from, to string) bool {
	if OrderStatusIsTerminal(from) {
		return false
	}
	if from == to {
		return true
	}

	fromRank, ok := orderStatusRank[from]
	if !ok {
		return false
	}
	toRank, ok := orderStatusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}
