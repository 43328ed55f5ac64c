package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonforge/ledgersaga"
)

// GetAccount implements the ledgersaga.AccountStore interface for Store.
func (s *Store) GetAccount(ctx context.Context, ref ledgersaga.AccountRef) (*ledgersaga.Account, error) {
	acct, err := loadAccount(ctx, s.db, ref, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", ref, ledgersaga.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// PutAccount implements the ledgersaga.AccountStore interface for Store.
func (s *Store) PutAccount(ctx context.Context, acct *ledgersaga.Account) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (ref, kind, owner, scope, committed, pending, capacity, regen_at, regen_nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ref) DO UPDATE SET
			committed = EXCLUDED.committed,
			pending = EXCLUDED.pending,
			capacity = EXCLUDED.capacity,
			regen_at = EXCLUDED.regen_at,
			regen_nonce = EXCLUDED.regen_nonce`,
		acct.Ref.String(), int(acct.Ref.Kind), acct.Ref.Owner, acct.Ref.Scope,
		acct.Committed, acct.Pending, acct.Capacity, acct.RegenAt, acct.RegenNonce)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	if err := saveEntries(ctx, tx, acct); err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return tx.Commit(ctx)
}

// EnsureAccount implements the ledgersaga.AccountStore interface for Store.
func (s *Store) EnsureAccount(ctx context.Context, acct *ledgersaga.Account) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO accounts (ref, kind, owner, scope, committed, pending, capacity, regen_at, regen_nonce)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ref) DO NOTHING`,
		acct.Ref.String(), int(acct.Ref.Kind), acct.Ref.Owner, acct.Ref.Scope,
		acct.Committed, acct.Pending, acct.Capacity, acct.RegenAt, acct.RegenNonce)
	if err != nil {
		return false, fmt.Errorf("ensure account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reserve implements the ledgersaga.AccountStore interface for Store.
func (s *Store) Reserve(ctx context.Context, ref ledgersaga.AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return s.mutateAccount(ctx, ref, func(a *ledgersaga.Account) bool { return a.Reserve(txID, delta) })
}

// Settle implements the ledgersaga.AccountStore interface for Store.
func (s *Store) Settle(ctx context.Context, ref ledgersaga.AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return s.mutateAccount(ctx, ref, func(a *ledgersaga.Account) bool { return a.Settle(txID, delta) })
}

// Unreserve implements the ledgersaga.AccountStore interface for Store.
func (s *Store) Unreserve(ctx context.Context, ref ledgersaga.AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return s.mutateAccount(ctx, ref, func(a *ledgersaga.Account) bool { return a.Unreserve(txID, delta) })
}

// Unsettle implements the ledgersaga.AccountStore interface for Store.
func (s *Store) Unsettle(ctx context.Context, ref ledgersaga.AccountRef, txID uuid.UUID, delta int64) (bool, error) {
	return s.mutateAccount(ctx, ref, func(a *ledgersaga.Account) bool { return a.Unsettle(txID, delta) })
}

// Accrue implements the ledgersaga.AccountStore interface for Store. The
// regeneration stamp guard and the capacity clamp live in the single UPDATE,
// so two concurrent accruals of the same window race on the WHERE clause and
// exactly one applies.
func (s *Store) Accrue(ctx context.Context, ref ledgersaga.AccountRef, prevAt time.Time, prevNonce uuid.UUID, amount int64, at time.Time, nonce uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE accounts SET
			committed = CASE
				WHEN capacity > 0 AND committed + $4 > capacity THEN capacity
				ELSE committed + $4
			END,
			regen_at = $5,
			regen_nonce = $6
		WHERE ref = $1 AND regen_at = $2 AND regen_nonce = $3`,
		ref.String(), prevAt, prevNonce, amount, at, nonce)
	if err != nil {
		return false, fmt.Errorf("accrue: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// mutateAccount runs a guarded mutation against one account row. The row is
// created empty if absent, locked FOR UPDATE, and the guard decides on the
// locked document before anything is written, which gives the same
// matched-or-no-op semantics as the in-memory critical section.
func (s *Store) mutateAccount(ctx context.Context, ref ledgersaga.AccountRef, apply func(*ledgersaga.Account) bool) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("mutate account: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO accounts (ref, kind, owner, scope)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ref) DO NOTHING`,
		ref.String(), int(ref.Kind), ref.Owner, ref.Scope)
	if err != nil {
		return false, fmt.Errorf("mutate account: %w", err)
	}

	acct, err := loadAccount(ctx, tx, ref, true)
	if err != nil {
		return false, fmt.Errorf("mutate account: %w", err)
	}
	if !apply(acct) {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE accounts SET committed = $2, pending = $3, capacity = $4, regen_at = $5, regen_nonce = $6
		WHERE ref = $1`,
		ref.String(), acct.Committed, acct.Pending, acct.Capacity, acct.RegenAt, acct.RegenNonce)
	if err != nil {
		return false, fmt.Errorf("mutate account: %w", err)
	}
	if err := saveEntries(ctx, tx, acct); err != nil {
		return false, fmt.Errorf("mutate account: %w", err)
	}
	return true, tx.Commit(ctx)
}

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadAccount(ctx context.Context, q querier, ref ledgersaga.AccountRef, forUpdate bool) (*ledgersaga.Account, error) {
	query := `SELECT committed, pending, capacity, regen_at, regen_nonce FROM accounts WHERE ref = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	acct := &ledgersaga.Account{Ref: ref}
	err := q.QueryRow(ctx, query, ref.String()).
		Scan(&acct.Committed, &acct.Pending, &acct.Capacity, &acct.RegenAt, &acct.RegenNonce)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx,
		`SELECT transaction_id, delta FROM pending_entries WHERE account_ref = $1 ORDER BY transaction_id`,
		ref.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e ledgersaga.PendingEntry
		if err := rows.Scan(&e.TransactionID, &e.Delta); err != nil {
			return nil, err
		}
		acct.PendingTransactions = append(acct.PendingTransactions, e)
	}
	return acct, rows.Err()
}

// saveEntries replaces the account's pending entries wholesale. The lists
// are short, at most a handful of in-flight sagas per account.
func saveEntries(ctx context.Context, tx pgx.Tx, acct *ledgersaga.Account) error {
	if _, err := tx.Exec(ctx, `DELETE FROM pending_entries WHERE account_ref = $1`, acct.Ref.String()); err != nil {
		return err
	}
	for _, e := range acct.PendingTransactions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO pending_entries (account_ref, transaction_id, delta)
			VALUES ($1, $2, $3)`,
			acct.Ref.String(), e.TransactionID, e.Delta); err != nil {
			return err
		}
	}
	return nil
}
