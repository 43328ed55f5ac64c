package ledgersaga

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/tidwall/btree"
)

// MemoryStore is an in-memory implementation of Store for tests, examples
// and single-process deployments. Guarded writes are implemented as a
// per-document critical section, so they have the same matched-or-no-op
// semantics a conditional database update would.
type MemoryStore struct {
	clock    Clock
	records  *xsync.MapOf[uuid.UUID, *memRecord]
	accounts *xsync.MapOf[string, *memAccount]
	index    *btree.BTreeG[sweepKey]

	bidMu    sync.Mutex
	auctions map[string]*Auction
}

type memRecord struct {
	mu  sync.Mutex
	rec *Record
}

type memAccount struct {
	mu   sync.Mutex
	acct *Account
}

// sweepKey orders records by domain, then last-transition time, so a sweep
// reads one contiguous range of the index.
type sweepKey struct {
	domain Domain
	ts     time.Time
	id     uuid.UUID
}

func sweepLess(a, b sweepKey) bool {
	if a.domain != b.domain {
		return a.domain < b.domain
	}
	if !a.ts.Equal(b.ts) {
		return a.ts.Before(b.ts)
	}
	return a.id.String() < b.id.String()
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryStore{
		clock:    clock,
		records:  xsync.NewMapOf[uuid.UUID, *memRecord](),
		accounts: xsync.NewMapOf[string, *memAccount](),
		index:    btree.NewBTreeG(sweepLess),
		auctions: make(map[string]*Auction),
	}
}

// CreateRecord inserts a new record.
func (m *MemoryStore) CreateRecord(ctx context.Context, rec *Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.clock.Now()
	}
	mr := &memRecord{rec: rec.Clone()}
	if _, loaded := m.records.LoadOrStore(rec.ID, mr); loaded {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	m.index.Set(sweepKey{domain: rec.Domain, ts: rec.Timestamp, id: rec.ID})
	return nil
}

// GetRecord retrieves a record by ID.
func (m *MemoryStore) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	mr, ok := m.records.Load(id)
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.rec.Clone(), nil
}

// updateRecord runs a guarded mutation against one record. The guard and
// the mutation see the same locked document, which is what makes the write
// conditional.
func (m *MemoryStore) updateRecord(id uuid.UUID, guard func(*Record) bool, mutate func(*Record)) (bool, error) {
	mr, ok := m.records.Load(id)
	if !ok {
		return false, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if !guard(mr.rec) {
		return false, nil
	}
	prev := sweepKey{domain: mr.rec.Domain, ts: mr.rec.Timestamp, id: id}
	mutate(mr.rec)
	mr.rec.Timestamp = m.clock.Now()
	m.index.Delete(prev)
	m.index.Set(sweepKey{domain: mr.rec.Domain, ts: mr.rec.Timestamp, id: id})
	return true, nil
}

// AdvanceProgress moves the progress track to target.
func (m *MemoryStore) AdvanceProgress(ctx context.Context, id uuid.UUID, target ProgressStatus) (bool, error) {
	return m.updateRecord(id,
		func(r *Record) bool { return canAdvanceProgress(r, target) },
		func(r *Record) { r.Progress = target },
	)
}

// AdvanceCancel moves the cancel track to target.
func (m *MemoryStore) AdvanceCancel(ctx context.Context, id uuid.UUID, target CancelStatus, olderThan time.Time) (bool, error) {
	return m.updateRecord(id,
		func(r *Record) bool {
			if !canAdvanceCancel(r, target) {
				return false
			}
			if target == CancelInitial {
				if progressResting(r) {
					return false
				}
				if !olderThan.IsZero() && r.Timestamp.After(olderThan) {
					return false
				}
			}
			return true
		},
		func(r *Record) { r.Cancel = target },
	)
}

// AdvanceRevert moves the revert track to target.
func (m *MemoryStore) AdvanceRevert(ctx context.Context, id uuid.UUID, target RevertStatus) (bool, error) {
	return m.updateRecord(id,
		func(r *Record) bool { return canAdvanceRevert(r, target) },
		func(r *Record) { r.Revert = target },
	)
}

// RegressProgress rolls the progress track back during a revert walk.
func (m *MemoryStore) RegressProgress(ctx context.Context, id uuid.UUID, to ProgressStatus) (bool, error) {
	return m.updateRecord(id,
		func(r *Record) bool {
			return r.Cancel != CancelNone && notReached(progressTable(r.Domain), to, r.Progress)
		},
		func(r *Record) { r.Progress = to },
	)
}

// AccrueReward adds to a record's typed reward bucket.
func (m *MemoryStore) AccrueReward(ctx context.Context, id uuid.UUID, kind RewardKind, qty int64) error {
	_, err := m.updateRecord(id,
		func(r *Record) bool { return true },
		func(r *Record) {
			if r.Rewards == nil {
				r.Rewards = make(map[RewardKind]int64)
			}
			r.Rewards[kind] += qty
		},
	)
	return err
}

// SweepStuck lists records of a domain that sit short of their sweep
// ceiling with a last transition older than the cutoff. Records resting at
// a milestone are never stuck, however old.
func (m *MemoryStore) SweepStuck(ctx context.Context, domain Domain, olderThan time.Time) ([]*Record, error) {
	var ids []uuid.UUID
	pivot := sweepKey{domain: domain}
	m.index.Ascend(pivot, func(k sweepKey) bool {
		if k.domain != domain || !k.ts.Before(olderThan) {
			return false
		}
		ids = append(ids, k.id)
		return true
	})

	var stuck []*Record
	for _, id := range ids {
		rec, err := m.GetRecord(ctx, id)
		if err != nil {
			continue
		}
		if !progressResting(rec) && rec.Cancel != Canceled {
			stuck = append(stuck, rec)
		}
	}
	return stuck, nil
}

// GetAccount retrieves an account.
func (m *MemoryStore) GetAccount(ctx context.Context, ref AccountRef) (*Account, error) {
	ma, ok := m.accounts.Load(ref.String())
	if !ok {
		return nil, fmt.Errorf("account %s: %w", ref, ErrNotFound)
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return ma.acct.Clone(), nil
}

// PutAccount creates or replaces an account.
func (m *MemoryStore) PutAccount(ctx context.Context, acct *Account) error {
	ma, _ := m.accounts.LoadOrStore(acct.Ref.String(), &memAccount{acct: &Account{Ref: acct.Ref}})
	ma.mu.Lock()
	defer ma.mu.Unlock()
	ma.acct = acct.Clone()
	return nil
}

// EnsureAccount creates the account if absent.
func (m *MemoryStore) EnsureAccount(ctx context.Context, acct *Account) (bool, error) {
	_, loaded := m.accounts.LoadOrStore(acct.Ref.String(), &memAccount{acct: acct.Clone()})
	return !loaded, nil
}

// updateAccount runs a guarded mutation against one account, creating it
// empty first if it does not exist. Reservation guards decide on the locked
// document, so two racing writers cannot both pass.
func (m *MemoryStore) updateAccount(ref AccountRef, apply func(*Account) bool) (bool, error) {
	ma, _ := m.accounts.LoadOrStore(ref.String(), &memAccount{acct: &Account{Ref: ref}})
	ma.mu.Lock()
	defer ma.mu.Unlock()
	return apply(ma.acct), nil
}

// Reserve places a pending hold against the account.
func (m *MemoryStore) Reserve(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return m.updateAccount(ref, func(a *Account) bool { return a.Reserve(txID, delta) })
}

// Settle commits a previously reserved hold.
func (m *MemoryStore) Settle(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return m.updateAccount(ref, func(a *Account) bool { return a.Settle(txID, delta) })
}

// Unreserve drops a pending hold.
func (m *MemoryStore) Unreserve(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return m.updateAccount(ref, func(a *Account) bool { return a.Unreserve(txID, delta) })
}

// Unsettle pushes a committed delta back into pending.
func (m *MemoryStore) Unsettle(ctx context.Context, ref AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return m.updateAccount(ref, func(a *Account) bool { return a.Unsettle(txID, delta) })
}

// Accrue credits a window-based gain exactly once.
func (m *MemoryStore) Accrue(ctx context.Context, ref AccountRef, prevAt time.Time, prevNonce uuid.UUID, amount int64, at time.Time, nonce uuid.UUID) (bool, error) {
	return m.updateAccount(ref, func(a *Account) bool {
		return a.Accrue(prevAt, prevNonce, amount, at, nonce)
	})
}

// GetAuction retrieves an auction.
func (m *MemoryStore) GetAuction(ctx context.Context, id string) (*Auction, error) {
	m.bidMu.Lock()
	defer m.bidMu.Unlock()
	a, ok := m.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, ErrNotFound)
	}
	return a.Clone(), nil
}

// PutAuction creates or replaces an auction.
func (m *MemoryStore) PutAuction(ctx context.Context, a *Auction) error {
	m.bidMu.Lock()
	defer m.bidMu.Unlock()
	m.auctions[a.ID] = a.Clone()
	return nil
}

// PlaceBid atomically applies a bid: the new bidder is debited with a funds
// guard, the previous winner refunded, the auction updated and two settled
// audit records written, all inside one critical section. This is the one
// path that needs a stronger primitive than the guarded single-document
// write.
func (m *MemoryStore) PlaceBid(ctx context.Context, auctionID, wallet string, amount int64, now time.Time) (*Auction, error) {
	m.bidMu.Lock()
	defer m.bidMu.Unlock()

	a, ok := m.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrNotFound)
	}
	if !a.EndsAt.IsZero() && now.After(a.EndsAt) {
		return nil, ErrAuctionClosed
	}
	floor := a.MinBid
	if a.WinningWallet != "" {
		floor = a.WinningBid + a.MinIncrement
	}
	if amount < floor {
		return nil, ErrBidTooLow
	}

	bidderRef := BalanceRef(wallet)
	ma, _ := m.accounts.LoadOrStore(bidderRef.String(), &memAccount{acct: &Account{Ref: bidderRef}})
	ma.mu.Lock()
	if ma.acct.Committed < amount {
		ma.mu.Unlock()
		return nil, ErrInsufficientBalance
	}
	ma.acct.Committed -= amount
	ma.mu.Unlock()

	prevWallet, prevBid := a.WinningWallet, a.WinningBid
	if prevWallet != "" {
		prevRef := BalanceRef(prevWallet)
		mp, _ := m.accounts.LoadOrStore(prevRef.String(), &memAccount{acct: &Account{Ref: prevRef}})
		mp.mu.Lock()
		mp.acct.Committed += prevBid
		mp.mu.Unlock()
	}

	a.WinningWallet = wallet
	a.WinningBid = amount
	a.History = append(a.History, Bid{Wallet: wallet, Amount: amount, At: now})

	debit := &Record{
		ID:        uuid.New(),
		Domain:    DomainBid,
		Source:    bidderRef,
		Amount:    amount,
		Progress:  StatusSettled,
		Timestamp: now,
		Meta:      Meta{RaffleID: auctionID},
	}
	if err := m.CreateRecord(ctx, debit); err != nil {
		return nil, err
	}
	if prevWallet != "" {
		prevRef := BalanceRef(prevWallet)
		refund := &Record{
			ID:          uuid.New(),
			Domain:      DomainBid,
			Source:      bidderRef,
			Destination: &prevRef,
			Amount:      prevBid,
			Progress:    StatusSettled,
			Timestamp:   now,
			Meta:        Meta{RaffleID: auctionID},
		}
		if err := m.CreateRecord(ctx, refund); err != nil {
			return nil, err
		}
	}

	return a.Clone(), nil
}
