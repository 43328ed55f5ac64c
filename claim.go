package ledgersaga

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ClaimRequest asks to pay out the claimable accrual of one stake into its
// owner's wallet.
type ClaimRequest struct {
	Wallet  string
	Stake   StakeInfo
	Payload []byte
	Proof   []byte
}

// ClaimResult is the outcome of a claim.
type ClaimResult struct {
	Record    *Record
	Claimable int64
	Locked    int64
}

// ClaimPoints settles the vested accrual of a stake into the wallet
// balance. The claimable amount is computed with the vesting schedule and
// frozen into the CLAIM record; the stake's accrual account is topped up to
// that amount exactly once per claim window (stamped accrual) and then
// debited by the saga, so a reverted claim leaves the accrued value in
// place for the next attempt.
func (e *Engine) ClaimPoints(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	if req.Wallet == "" || req.Stake.StakeID == "" || req.Stake.StakedAt.IsZero() {
		return nil, fmt.Errorf("claim: %w", ErrInvalidRequest)
	}

	ok, err := e.auth.Verify(ctx, req.Wallet, "claim", req.Payload, req.Proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("claim for %s: %w", req.Wallet, ErrAuthorizationFailure)
	}

	now := e.clock.Now()
	schedule := e.cfg.vesting()
	totals := schedule.Accrue(req.Stake, now)
	claimable := Quanta(totals.Claimable)
	locked := Quanta(totals.Locked)
	if claimable <= 0 {
		return &ClaimResult{Claimable: 0, Locked: locked}, nil
	}

	ref := StakeRef(req.Stake.StakeID, req.Wallet)
	if _, err := e.store.EnsureAccount(ctx, &Account{Ref: ref}); err != nil {
		return nil, err
	}
	acct, err := e.store.GetAccount(ctx, ref)
	if err != nil {
		return nil, err
	}

	lastClaimable := schedule.LastClaimable(req.Stake.StakedAt, now)
	if topUp := claimable - acct.Projected(); topUp > 0 {
		// Recognize the newly vested value exactly once for this window; a
		// concurrent claim that already recognized it no-ops here.
		if _, err := e.store.Accrue(ctx, ref, acct.RegenAt, acct.RegenNonce, topUp, lastClaimable, uuid.New()); err != nil {
			return nil, err
		}
	}

	dst := BalanceRef(req.Wallet)
	rec := &Record{
		Domain:      DomainClaim,
		Source:      ref,
		Destination: &dst,
		Amount:      claimable,
		Meta: Meta{
			StakeID:       req.Stake.StakeID,
			LastClaimable: lastClaimable,
			HasLocked:     locked > 0,
		},
	}
	if err := e.insert(ctx, rec); err != nil {
		return nil, err
	}

	if err := e.drive(ctx, rec); err != nil {
		return nil, fmt.Errorf("claim %s: %w", rec.ID, err)
	}

	return &ClaimResult{Record: rec, Claimable: claimable, Locked: locked}, nil
}

// GrantReward credits a wallet with a one-sided REWARD record. Used for
// payouts that have no internal source account.
func (e *Engine) GrantReward(ctx context.Context, wallet string, amount int64) (*Record, error) {
	if wallet == "" || amount <= 0 {
		return nil, fmt.Errorf("reward: %w", ErrInvalidRequest)
	}
	dst := BalanceRef(wallet)
	rec, err := e.CreateRecord(ctx, DomainReward, dst, &dst, amount)
	if err != nil {
		return nil, err
	}
	if err := e.drive(ctx, rec); err != nil {
		return nil, fmt.Errorf("reward %s: %w", rec.ID, err)
	}
	return rec, nil
}

// PayoutExternal debits a wallet balance and hands the value to an external
// send. Once the send has been attempted the record is never reverted: on
// send failure the record is left SETTLING for manual audit, because the
// external side may or may not have happened.
func (e *Engine) PayoutExternal(ctx context.Context, wallet string, amount int64, send func(context.Context) error) (*Record, error) {
	if wallet == "" || amount <= 0 || send == nil {
		return nil, fmt.Errorf("payout: %w", ErrInvalidRequest)
	}

	src := BalanceRef(wallet)
	rec, err := e.CreateRecord(ctx, DomainPayout, src, nil, amount)
	if err != nil {
		return nil, err
	}

	ok, err := e.Reserve(ctx, src, rec, -amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.fail(ctx, rec)
		return nil, fmt.Errorf("payout %s: %w", rec.ID, ErrInsufficientBalance)
	}
	if err := e.step(ctx, rec, StatusPending); err != nil {
		return nil, err
	}
	if err := e.step(ctx, rec, StatusSettling); err != nil {
		return nil, err
	}

	if err := send(ctx); err != nil {
		e.log.Error().Err(err).
			Stringer("record", rec.ID).
			Str("wallet", wallet).
			Msg("external send failed after attempt, record left for audit")
		return rec, fmt.Errorf("payout %s: external send: %w", rec.ID, err)
	}

	// Past this point the value has left the system; settle whatever still
	// matches and never compensate.
	if _, err := e.Settle(ctx, src, rec, -amount); err != nil {
		return rec, err
	}
	if _, err := e.AdvanceProgress(ctx, rec, StatusSettled); err != nil {
		return rec, err
	}
	return rec, nil
}
