package ledgersaga

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors of the engine. GuardFailure is the non-fatal class: a
// conditional write matched nothing and the caller converts it into a
// compensation attempt rather than surfacing it.
var (
	ErrGuardFailure         = errors.New("guarded update matched nothing")
	ErrInsufficientBalance  = fmt.Errorf("insufficient balance: %w", ErrGuardFailure)
	ErrAuthorizationFailure = errors.New("authorization rejected")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrStuckSaga            = errors.New("saga stuck past grace interval")
	ErrNotFound             = errors.New("not found")
	ErrMaxTickets           = errors.New("maximum tickets reached")
	ErrAuctionClosed        = errors.New("auction closed")
	ErrBidTooLow            = errors.New("bid below current winning bid")
)

// InconsistencyError reports a revert that ran to completion without
// reaching CANCELED. It is never auto-retried; the record is dumped for
// manual audit and an operator has to look at it.
type InconsistencyError struct {
	RecordID uuid.UUID
	Domain   Domain
}

// Error implements the error interface for InconsistencyError.
func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("record %s (%s) did not reach CANCELED after revert", e.RecordID, e.Domain)
}

// UserMessage maps an engine error to the short domain message shown to the
// caller. Track and phase detail never leaks past this boundary.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaxTickets):
		return "Maximum tickets reached"
	case errors.Is(err, ErrAuthorizationFailure):
		return "Verification Failed"
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid Request"
	case errors.Is(err, ErrBidTooLow):
		return "Bid too low"
	case errors.Is(err, ErrAuctionClosed):
		return "Auction has ended"
	default:
		return "Something went wrong, try again"
	}
}
