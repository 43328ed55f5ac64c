package ledgersaga

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts the engine's time source so tests control it. Timestamps
// are UTC with millisecond intent on the wire.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// RecordStore persists saga records, one table per domain. Every transition
// method is a guarded conditional write: it reports (false, nil) when the
// guard no longer holds, which the caller treats as overtaken-by-another-
// writer, never as an exception.
type RecordStore interface {
	// CreateRecord inserts a new record.
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord retrieves a record by ID.
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)

	// AdvanceProgress moves the progress track to target if the record has
	// not reached it and neither the cancel nor revert track is set. The
	// record timestamp is refreshed on success.
	AdvanceProgress(ctx context.Context, id uuid.UUID, target ProgressStatus) (bool, error)

	// AdvanceCancel moves the cancel track to target. For CANCEL_INITIAL
	// the record's progress must sit short of its domain's sweep ceiling
	// and, when olderThan is non-zero, the record must be older than it.
	AdvanceCancel(ctx context.Context, id uuid.UUID, target CancelStatus, olderThan time.Time) (bool, error)

	// AdvanceRevert moves the revert track to target under an open
	// cancellation.
	AdvanceRevert(ctx context.Context, id uuid.UUID, target RevertStatus) (bool, error)

	// RegressProgress rolls the progress track back during a revert walk,
	// guarded by an open cancellation.
	RegressProgress(ctx context.Context, id uuid.UUID, to ProgressStatus) (bool, error)

	// AccrueReward adds to a record's typed reward bucket.
	AccrueReward(ctx context.Context, id uuid.UUID, kind RewardKind, qty int64) error

	// SweepStuck lists records of a domain stuck short of their sweep
	// ceiling whose last transition is older than the cutoff.
	SweepStuck(ctx context.Context, domain Domain, olderThan time.Time) ([]*Record, error)
}

// AccountStore persists accounts. Reserve, Settle and their inverses are
// guarded conditional writes with the guards of §Account; (false, nil)
// means the guard failed and nothing changed.
type AccountStore interface {
	// GetAccount retrieves an account, ErrNotFound if absent.
	GetAccount(ctx context.Context, ref AccountRef) (*Account, error)

	// PutAccount creates or replaces an account.
	PutAccount(ctx context.Context, acct *Account) error

	// EnsureAccount creates the account if absent, without touching an
	// existing one, and reports whether it created it. Seeding path for
	// capped counters and stamina pools.
	EnsureAccount(ctx context.Context, acct *Account) (bool, error)

	// Reserve places a pending hold against the account.
	Reserve(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error)

	// Settle commits a previously reserved hold.
	Settle(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error)

	// Unreserve drops a pending hold.
	Unreserve(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error)

	// Unsettle pushes a committed delta back into pending.
	Unsettle(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error)

	// Accrue credits a window-based gain exactly once, guarded by the
	// regeneration stamp the caller read.
	Accrue(ctx context.Context, ref AccountRef, prevAt time.Time, prevNonce uuid.UUID, amount int64, at time.Time, nonce uuid.UUID) (bool, error)
}

// BidStore persists auctions. PlaceBid is deliberately a stronger primitive
// than the guarded single-document writes used everywhere else: the refund
// of the previous winner, the debit of the new bidder and the auction update
// happen in one atomic batch, retried wholesale on conflict.
type BidStore interface {
	// GetAuction retrieves an auction, ErrNotFound if absent.
	GetAuction(ctx context.Context, id string) (*Auction, error)

	// PutAuction creates or replaces an auction.
	PutAuction(ctx context.Context, a *Auction) error

	// PlaceBid atomically applies a bid and returns the updated auction.
	// Rejections surface as ErrAuctionClosed, ErrBidTooLow or
	// ErrInsufficientBalance.
	PlaceBid(ctx context.Context, auctionID, wallet string, amount int64, now time.Time) (*Auction, error)
}

// Store is the full persistence contract the engine runs against.
type Store interface {
	RecordStore
	AccountStore
	BidStore
}

// Authorizer verifies a signed action before any state mutation. The
// verification itself (wallet signatures, on-chain transactions) lives
// outside the engine.
type Authorizer interface {
	Verify(ctx context.Context, owner, action string, payload, proof []byte) (bool, error)
}

// AllowAll accepts every authorization. For tests and examples.
type AllowAll struct{}

// Verify always reports success.
func (AllowAll) Verify(ctx context.Context, owner, action string, payload, proof []byte) (bool, error) {
	return true, nil
}

// RandomSource supplies unbiased random indexes for winner draws.
type RandomSource interface {
	// DrawIndex returns a uniform integer in [0, max).
	DrawIndex(ctx context.Context, max int) (int, error)
}
