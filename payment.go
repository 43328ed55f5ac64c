package ledgersaga

import (
	"context"
	"fmt"
)

// PaymentRequest asks to credit a raffle beneficiary's wallet.
type PaymentRequest struct {
	Wallet    string
	RaffleID  string
	PaymentID string
	Amount    int64
}

// PayBeneficiary credits a wallet with a one-sided PAYMENT record linked
// back to the raffle it settles. There is no debit leg; the value enters
// from the raffle's proceeds, which live outside the ledger.
func (e *Engine) PayBeneficiary(ctx context.Context, req PaymentRequest) (*Record, error) {
	if req.Wallet == "" || req.RaffleID == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("payment: %w", ErrInvalidRequest)
	}

	dst := BalanceRef(req.Wallet)
	rec := &Record{
		Domain:      DomainPayment,
		Source:      dst,
		Destination: &dst,
		Amount:      req.Amount,
		Meta: Meta{
			RaffleID:  req.RaffleID,
			PaymentID: req.PaymentID,
		},
	}
	if err := e.insert(ctx, rec); err != nil {
		return nil, err
	}

	if err := e.drive(ctx, rec); err != nil {
		return nil, fmt.Errorf("payment %s: %w", rec.ID, err)
	}

	e.log.Info().
		Stringer("record", rec.ID).
		Str("raffle", req.RaffleID).
		Str("wallet", req.Wallet).
		Int64("amount", req.Amount).
		Msg("beneficiary paid")
	return rec, nil
}
