package ledgersaga

import (
	"context"
	"fmt"
)

// TransferRequest asks to move points between two wallets.
type TransferRequest struct {
	Source      string
	Destination string
	Amount      int64
	Payload     []byte
	Proof       []byte
}

// TransferResult is the outcome of a settled transfer.
type TransferResult struct {
	Record     *Record
	NewBalance int64
}

// Transfer moves points from one wallet balance to another: the source is
// debited and the destination credited through one TRANSFER record. A guard
// failure anywhere in the forward walk compensates the record and surfaces
// the failure.
func (e *Engine) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Source == "" || req.Destination == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("transfer: %w", ErrInvalidRequest)
	}

	ok, err := e.auth.Verify(ctx, req.Source, "transfer", req.Payload, req.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("transfer from %s: %w", req.Source, ErrAuthorizationFailure)
	}

	dst := BalanceRef(req.Destination)
	rec, err := e.CreateRecord(ctx, DomainTransfer, BalanceRef(req.Source), &dst, req.Amount)
	if err != nil {
		return nil, err
	}

	e.log.Debug().
		Stringer("record", rec.ID).
		Str("source", req.Source).
		Str("destination", req.Destination).
		Int64("amount", req.Amount).
		Msg("transfer started")

	if err := e.drive(ctx, rec); err != nil {
		return nil, fmt.Errorf("transfer %s: %w", rec.ID, err)
	}

	src, err := e.store.GetAccount(ctx, BalanceRef(req.Source))
	if err != nil {
		return nil, err
	}
	return &TransferResult{Record: rec, NewBalance: src.Committed}, nil
}
