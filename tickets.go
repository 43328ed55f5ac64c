package ledgersaga

import (
	"context"
	"errors"
	"fmt"
)

// TicketPurchaseRequest asks to buy raffle tickets with points.
type TicketPurchaseRequest struct {
	Wallet       string
	RaffleID     string
	Quantity     int64
	Price        int64 // per ticket, in quanta
	MaxPerWallet int64 // 0 means unlimited
	Payload      []byte
	Proof        []byte
}

// PurchaseTickets buys raffle tickets: the wallet balance is debited by
// price×quantity and the per-raffle entry counter credited by quantity
// inside one TICKET_PURCHASE record. The counter's capacity enforces the
// per-wallet maximum inside the reservation guard itself, so two racing
// purchases cannot both squeeze under the limit.
func (e *Engine) PurchaseTickets(ctx context.Context, req TicketPurchaseRequest) (*Record, error) {
	if req.Wallet == "" || req.RaffleID == "" || req.Quantity <= 0 || req.Price < 0 {
		return nil, fmt.Errorf("ticket purchase: %w", ErrInvalidRequest)
	}

	ok, err := e.auth.Verify(ctx, req.Wallet, "buy-tickets", req.Payload, req.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ticket purchase for %s: %w", req.Wallet, ErrAuthorizationFailure)
	}

	counter := TicketsRef(req.RaffleID, req.Wallet)
	if req.MaxPerWallet > 0 {
		if _, err := e.store.EnsureAccount(ctx, &Account{Ref: counter, Capacity: req.MaxPerWallet}); err != nil {
			return nil, err
		}
	}

	rec := &Record{
		Domain:      DomainTicketPurchase,
		Source:      BalanceRef(req.Wallet),
		Destination: &counter,
		Amount:      req.Price * req.Quantity,
		Quantity:    req.Quantity,
		Meta:        Meta{RaffleID: req.RaffleID},
	}
	if err := e.insert(ctx, rec); err != nil {
		return nil, err
	}

	if err := e.drive(ctx, rec); err != nil {
		return nil, fmt.Errorf("ticket purchase %s: %w", rec.ID, err)
	}

	e.log.Debug().
		Stringer("record", rec.ID).
		Str("raffle", req.RaffleID).
		Str("wallet", req.Wallet).
		Int64("tickets", req.Quantity).
		Msg("tickets purchased")
	return rec, nil
}

// TicketCount returns the settled and in-flight tickets a wallet holds in a
// raffle.
func (e *Engine) TicketCount(ctx context.Context, raffleID, wallet string) (int64, error) {
	acct, err := e.store.GetAccount(ctx, TicketsRef(raffleID, wallet))
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return acct.Committed, nil
}
