package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/halcyonforge/ledgersaga"
)

const bidRetries = 3

// GetAuction implements the ledgersaga.BidStore interface for Store.
func (s *Store) GetAuction(ctx context.Context, id string) (*ledgersaga.Auction, error) {
	a, err := scanAuction(s.db.QueryRow(ctx, `
		SELECT id, item, min_bid, min_increment, ends_at, winning_wallet, winning_bid, history
		FROM auctions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", id, ledgersaga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

// PutAuction implements the ledgersaga.BidStore interface for Store.
func (s *Store) PutAuction(ctx context.Context, a *ledgersaga.Auction) error {
	history, err := json.Marshal(a.History)
	if err != nil {
		return fmt.Errorf("put auction: %w", err)
	}
	var endsAt *time.Time
	if !a.EndsAt.IsZero() {
		endsAt = &a.EndsAt
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO auctions (id, item, min_bid, min_increment, ends_at, winning_wallet, winning_bid, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			item = EXCLUDED.item,
			min_bid = EXCLUDED.min_bid,
			min_increment = EXCLUDED.min_increment,
			ends_at = EXCLUDED.ends_at,
			winning_wallet = EXCLUDED.winning_wallet,
			winning_bid = EXCLUDED.winning_bid,
			history = EXCLUDED.history`,
		a.ID, a.Item, a.MinBid, a.MinIncrement, endsAt, a.WinningWallet, a.WinningBid, history)
	if err != nil {
		return fmt.Errorf("put auction: %w", err)
	}
	return nil
}

// PlaceBid implements the ledgersaga.BidStore interface for Store. It runs
// the whole bid as one RepeatableRead transaction with the auction row locked
// first and the wallet rows locked in sorted key order, and retries on
// serialization conflict. Two bidders must never both observe themselves
// winning, which is why this path is not a saga.
func (s *Store) PlaceBid(ctx context.Context, auctionID, wallet string, amount int64, now time.Time) (*ledgersaga.Auction, error) {
	var (
		a   *ledgersaga.Auction
		err error
	)
	for attempt := 0; attempt < bidRetries; attempt++ {
		a, err = s.placeBidTx(ctx, auctionID, wallet, amount, now)
		if !isSerializationFailure(err) {
			return a, err
		}
	}
	return nil, fmt.Errorf("bid on %s: retries exhausted: %w", auctionID, err)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func (s *Store) placeBidTx(ctx context.Context, auctionID, wallet string, amount int64, now time.Time) (*ledgersaga.Auction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAuction(tx.QueryRow(ctx, `
		SELECT id, item, min_bid, min_increment, ends_at, winning_wallet, winning_bid, history
		FROM auctions WHERE id = $1 FOR UPDATE`, auctionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ledgersaga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}

	if !a.EndsAt.IsZero() && now.After(a.EndsAt) {
		return nil, ledgersaga.ErrAuctionClosed
	}
	floor := a.MinBid
	if a.WinningWallet != "" {
		floor = a.WinningBid + a.MinIncrement
	}
	if amount < floor {
		return nil, ledgersaga.ErrBidTooLow
	}

	bidderRef := ledgersaga.BalanceRef(wallet)
	refs := []ledgersaga.AccountRef{bidderRef}
	var prevRef ledgersaga.AccountRef
	if a.WinningWallet != "" {
		prevRef = ledgersaga.BalanceRef(a.WinningWallet)
		refs = append(refs, prevRef)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })

	committed := make(map[string]int64, len(refs))
	for _, ref := range refs {
		_, err = tx.Exec(ctx, `
			INSERT INTO accounts (ref, kind, owner, scope)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (ref) DO NOTHING`,
			ref.String(), int(ref.Kind), ref.Owner, ref.Scope)
		if err != nil {
			return nil, fmt.Errorf("place bid: %w", err)
		}
		var c int64
		if err := tx.QueryRow(ctx, `SELECT committed FROM accounts WHERE ref = $1 FOR UPDATE`, ref.String()).Scan(&c); err != nil {
			return nil, fmt.Errorf("place bid: %w", err)
		}
		committed[ref.String()] = c
	}

	if committed[bidderRef.String()] < amount {
		return nil, ledgersaga.ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET committed = committed - $2 WHERE ref = $1`, bidderRef.String(), amount); err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	prevWallet, prevBid := a.WinningWallet, a.WinningBid
	if prevWallet != "" {
		if _, err := tx.Exec(ctx, `UPDATE accounts SET committed = committed + $2 WHERE ref = $1`, prevRef.String(), prevBid); err != nil {
			return nil, fmt.Errorf("place bid: %w", err)
		}
	}

	a.WinningWallet = wallet
	a.WinningBid = amount
	a.History = append(a.History, ledgersaga.Bid{Wallet: wallet, Amount: amount, At: now})

	history, err := json.Marshal(a.History)
	if err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE auctions SET winning_wallet = $2, winning_bid = $3, history = $4
		WHERE id = $1`,
		auctionID, a.WinningWallet, a.WinningBid, history); err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}

	debit := &ledgersaga.Record{
		ID:        uuid.New(),
		Domain:    ledgersaga.DomainBid,
		Source:    bidderRef,
		Amount:    amount,
		Progress:  ledgersaga.StatusSettled,
		Timestamp: now,
		Meta:      ledgersaga.Meta{RaffleID: auctionID},
	}
	if err := insertRecord(ctx, tx, debit); err != nil {
		return nil, fmt.Errorf("place bid: %w", err)
	}
	if prevWallet != "" {
		refund := &ledgersaga.Record{
			ID:          uuid.New(),
			Domain:      ledgersaga.DomainBid,
			Source:      bidderRef,
			Destination: &prevRef,
			Amount:      prevBid,
			Progress:    ledgersaga.StatusSettled,
			Timestamp:   now,
			Meta:        ledgersaga.Meta{RaffleID: auctionID},
		}
		if err := insertRecord(ctx, tx, refund); err != nil {
			return nil, fmt.Errorf("place bid: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func scanAuction(row pgx.Row) (*ledgersaga.Auction, error) {
	var (
		a       ledgersaga.Auction
		endsAt  *time.Time
		history []byte
	)
	if err := row.Scan(&a.ID, &a.Item, &a.MinBid, &a.MinIncrement, &endsAt,
		&a.WinningWallet, &a.WinningBid, &history); err != nil {
		return nil, err
	}
	if endsAt != nil {
		a.EndsAt = *endsAt
	}
	if err := json.Unmarshal(history, &a.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return &a, nil
}
