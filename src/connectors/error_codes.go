package connectors

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the venue client.
var (
	ErrOrderNotFound    = errors.New("venue: order not found")
	ErrQuoteUnavailable = errors.New("venue: quote unavailable")
)

// VenueError carries the HTTP status and venue-supplied code/message of a
// failed call. Transient failures (5xx, 429, 408) are retried by the client
// itself; everything else is terminal for the attempt.
type VenueError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"message"`
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error (http %d, code %d): %s", e.StatusCode, e.Code, e.Message)
}

// Retryable reports whether the failure is transient. Mirrors the retry
// condition wired into the resty client.
func (e *VenueError) Retryable() bool {
	if e.StatusCode >= 500 && e.StatusCode <= 599 {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode == 408
}

// Rejection reports whether the venue refused the order itself (invalid
// order, insufficient buying power) rather than failing to process the
// request. Rejections are terminal for that order and surfaced
// synchronously to the submitter.
func (e *VenueError) Rejection() bool {
	switch e.StatusCode {
	case 403, 422:
		return true
	}
	return false
}

// AsVenueError unwraps err into a *VenueError when possible.
func AsVenueError(err error) (*VenueError, bool) {
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
