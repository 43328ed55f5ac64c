package ledgersaga

import (
	"context"
	"fmt"
	"time"
)

// Bid is one entry in an auction's bid history.
type Bid struct {
	Wallet string    `json:"wallet"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// Auction is a competitive sale of one item. The winning bidder's points
// stay debited; everyone they outbid has been refunded.
type Auction struct {
	ID            string    `json:"id"`
	Item          string    `json:"item"`
	MinBid        int64     `json:"min_bid"`
	MinIncrement  int64     `json:"min_increment"`
	EndsAt        time.Time `json:"ends_at"`
	WinningWallet string    `json:"winning_wallet,omitempty"`
	WinningBid    int64     `json:"winning_bid,omitempty"`
	History       []Bid     `json:"history,omitempty"`
}

// Clone returns a deep copy of the auction.
func (a *Auction) Clone() *Auction {
	c := *a
	c.History = append([]Bid(nil), a.History...)
	return &c
}

// BidRequest asks to place a bid.
type BidRequest struct {
	AuctionID string
	Wallet    string
	Amount    int64
	Payload   []byte
	Proof     []byte
}

// PlaceBid places a bid through the store's atomic bid primitive. Unlike
// every other flow this is not a saga: refunding the previous winner,
// debiting the bidder and updating the auction happen in one multi-document
// transaction, retried wholesale on conflict, because two bidders must
// never both observe themselves winning.
func (e *Engine) PlaceBid(ctx context.Context, req BidRequest) (*Auction, error) {
	if req.AuctionID == "" || req.Wallet == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("bid: %w", ErrInvalidRequest)
	}

	ok, err := e.auth.Verify(ctx, req.Wallet, "bid", req.Payload, req.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("bid by %s: %w", req.Wallet, ErrAuthorizationFailure)
	}

	a, err := e.store.PlaceBid(ctx, req.AuctionID, req.Wallet, req.Amount, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("bid on %s: %w", req.AuctionID, err)
	}

	e.metrics.Settled.WithLabelValues(DomainBid.String()).Inc()
	e.log.Info().
		Str("auction", req.AuctionID).
		Str("wallet", req.Wallet).
		Int64("amount", req.Amount).
		Msg("bid placed")
	return a, nil
}
