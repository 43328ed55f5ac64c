package ledgersaga

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AccountKind distinguishes the value an account carries: a point balance,
// a raffle ticket counter, quest stamina, or an accrued reward bucket.
type AccountKind int

const (
	AccountBalance AccountKind = iota
	AccountTickets
	AccountStamina
	AccountRewards
)

// String implements the fmt.Stringer interface for AccountKind.
func (k AccountKind) String() string {
	switch k {
	case AccountBalance:
		return "balance"
	case AccountTickets:
		return "tickets"
	case AccountStamina:
		return "stamina"
	case AccountRewards:
		return "rewards"
	default:
		return fmt.Sprintf("Unknown AccountKind: %d", k)
	}
}

// AccountRef addresses one account. Owner is the wallet or participant
// identity; Scope qualifies counters that exist per raffle, quest or stake.
type AccountRef struct {
	Kind  AccountKind `json:"kind"`
	Owner string      `json:"owner"`
	Scope string      `json:"scope,omitempty"`
}

// String returns the canonical key for the reference.
func (r AccountRef) String() string {
	if r.Scope == "" {
		return r.Kind.String() + "/" + r.Owner
	}
	return r.Kind.String() + "/" + r.Scope + "/" + r.Owner
}

// BalanceRef addresses a wallet's point balance.
func BalanceRef(wallet string) AccountRef {
	return AccountRef{Kind: AccountBalance, Owner: wallet}
}

// TicketsRef addresses a wallet's entry counter within one raffle.
func TicketsRef(raffleID, wallet string) AccountRef {
	return AccountRef{Kind: AccountTickets, Owner: wallet, Scope: raffleID}
}

// StaminaRef addresses a participant's stamina pool.
func StaminaRef(participant string) AccountRef {
	return AccountRef{Kind: AccountStamina, Owner: participant}
}

// RewardsRef addresses a participant's reward bucket within one quest.
func RewardsRef(questID, participant string) AccountRef {
	return AccountRef{Kind: AccountRewards, Owner: participant, Scope: questID}
}

// StakeRef addresses the accrual account of one stake.
func StakeRef(stakeID, wallet string) AccountRef {
	return AccountRef{Kind: AccountRewards, Owner: wallet, Scope: stakeID}
}

// PendingEntry is one in-flight reservation against an account. The entry
// doubles as the idempotency key: no transaction ID appears twice.
type PendingEntry struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Delta         int64     `json:"delta"`
}

// Account is a balance- or counter-bearing entity. Committed only changes
// inside settlement or its reversal; Pending only changes inside reservation
// or its reversal.
//
// Capacity, when positive, caps Committed+Pending for credit reservations
// (maximum raffle tickets, maximum stamina). RegenAt and RegenNonce stamp
// the last window-based accrual so two concurrent accruals of the same
// elapsed window cannot both apply.
type Account struct {
	Ref                 AccountRef     `json:"ref"`
	Committed           int64          `json:"committed"`
	Pending             int64          `json:"pending"`
	PendingTransactions []PendingEntry `json:"pending_transactions,omitempty"`
	Capacity            int64          `json:"capacity,omitempty"`
	RegenAt             time.Time      `json:"regen_at,omitempty"`
	RegenNonce          uuid.UUID      `json:"regen_nonce,omitempty"`
}

// Projected returns the balance the account will hold once every in-flight
// reservation settles.
func (a *Account) Projected() int64 {
	return a.Committed + a.Pending
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	c.PendingTransactions = append([]PendingEntry(nil), a.PendingTransactions...)
	return &c
}

// available is the committed balance minus every in-flight debit. Pending
// credits do not count; they may still unwind.
func (a *Account) available() int64 {
	avail := a.Committed
	for _, e := range a.PendingTransactions {
		if e.Delta < 0 {
			avail += e.Delta
		}
	}
	return avail
}

func (a *Account) entryIndex(txID uuid.UUID) int {
	for i, e := range a.PendingTransactions {
		if e.TransactionID == txID {
			return i
		}
	}
	return -1
}

// Reserve applies a reservation if its guards hold: the transaction must not
// already hold an entry, debits need committed funds net of the other
// in-flight debits, credits must fit under the capacity when one is set.
// Reports false on guard failure without mutating. Stores call it with the
// document locked.
func (a *Account) Reserve(txID uuid.UUID, delta int64) bool {
	if a.entryIndex(txID) >= 0 {
		return false
	}
	if delta < 0 && a.available() < -delta {
		return false
	}
	if delta > 0 && a.Capacity > 0 && a.Committed+a.Pending+delta > a.Capacity {
		return false
	}
	a.Pending += delta
	a.PendingTransactions = append(a.PendingTransactions, PendingEntry{TransactionID: txID, Delta: delta})
	return true
}

// Settle commits a reservation, guarded by the exact pending entry being
// present.
func (a *Account) Settle(txID uuid.UUID, delta int64) bool {
	i := a.entryIndex(txID)
	if i < 0 || a.PendingTransactions[i].Delta != delta {
		return false
	}
	a.Pending -= delta
	a.Committed += delta
	a.PendingTransactions = append(a.PendingTransactions[:i], a.PendingTransactions[i+1:]...)
	return true
}

// Unreserve is the inverse of Reserve: it drops the pending entry without
// ever having touched committed.
func (a *Account) Unreserve(txID uuid.UUID, delta int64) bool {
	i := a.entryIndex(txID)
	if i < 0 || a.PendingTransactions[i].Delta != delta {
		return false
	}
	a.Pending -= delta
	a.PendingTransactions = append(a.PendingTransactions[:i], a.PendingTransactions[i+1:]...)
	return true
}

// Unsettle is the inverse of Settle: the committed delta is pushed back into
// pending and the entry restored, guarded by the entry being absent and, for
// credits, by the committed value still covering the delta.
func (a *Account) Unsettle(txID uuid.UUID, delta int64) bool {
	if a.entryIndex(txID) >= 0 {
		return false
	}
	if delta > 0 && a.Committed < delta {
		return false
	}
	a.Committed -= delta
	a.Pending += delta
	a.PendingTransactions = append(a.PendingTransactions, PendingEntry{TransactionID: txID, Delta: delta})
	return true
}

// Accrue credits a window-based gain exactly once: the guard compares the
// regeneration stamp against the value the caller computed from, and the
// result is clamped to the capacity when one is set.
func (a *Account) Accrue(prevAt time.Time, prevNonce uuid.UUID, amount int64, at time.Time, nonce uuid.UUID) bool {
	if !a.RegenAt.Equal(prevAt) || a.RegenNonce != prevNonce {
		return false
	}
	c := a.Committed + amount
	if a.Capacity > 0 && c > a.Capacity {
		c = a.Capacity
	}
	a.Committed = c
	a.RegenAt = at
	a.RegenNonce = nonce
	return true
}
