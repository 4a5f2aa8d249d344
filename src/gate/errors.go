package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrTradingDisabled is returned when the kill switch blocks a
	// submission. The venue is never contacted in that case.
	ErrTradingDisabled = errors.New("trading disabled")

	// ErrOrderNotFound is returned by cancel/get when no ledger row matches.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInsufficientPosition is returned when a sell exceeds the locally
	// attributed position for the strategy.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrSubmissionUnresolved is returned when the venue call failed in a
	// way that leaves the outcome unknown (e.g. timeout). The provisional
	// order stays in the ledger and the reconciler resolves it by client
	// order ID correlation.
	ErrSubmissionUnresolved = errors.New("submission outcome unresolved")
)

// ValidationError reports an invalid submission input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RejectionError reports a venue-side order rejection, terminal for that
// order and surfaced synchronously to the submitter.
type RejectionError struct {
	ClientOrderID string
	VenueMessage  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("order %s rejected by venue: %s", e.ClientOrderID, e.VenueMessage)
}
