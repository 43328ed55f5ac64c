package ledgersaga

import (
	"context"
	"fmt"
)

// Reserve places a pending hold for the record against an account. A false
// result means the guard failed: either the record already holds an entry
// there, the funds do not cover a debit, or a capacity would be exceeded.
func (e *Engine) Reserve(ctx context.Context, ref AccountRef, rec *Record, delta int64) (bool, error) {
	ok, err := e.store.Reserve(ctx, ref, rec.ID, delta)
	if err == nil && !ok {
		e.metrics.GuardFailures.WithLabelValues(rec.Domain.String()).Inc()
	}
	return ok, err
}

// Settle commits the record's hold on an account.
func (e *Engine) Settle(ctx context.Context, ref AccountRef, rec *Record, delta int64) (bool, error) {
	ok, err := e.store.Settle(ctx, ref, rec.ID, delta)
	if err == nil && !ok {
		e.metrics.GuardFailures.WithLabelValues(rec.Domain.String()).Inc()
	}
	return ok, err
}

// Unreserve drops the record's hold on an account.
func (e *Engine) Unreserve(ctx context.Context, ref AccountRef, rec *Record, delta int64) (bool, error) {
	return e.store.Unreserve(ctx, ref, rec.ID, delta)
}

// Unsettle pushes the record's committed delta on an account back into
// pending.
func (e *Engine) Unsettle(ctx context.Context, ref AccountRef, rec *Record, delta int64) (bool, error) {
	return e.store.Unsettle(ctx, ref, rec.ID, delta)
}

// guardErr translates a reservation guard failure into the domain error the
// orchestrator surfaces.
func guardErr(l leg) error {
	if l.delta < 0 {
		return fmt.Errorf("reserve %d on %s: %w", l.delta, l.ref, ErrInsufficientBalance)
	}
	if l.ref.Kind == AccountTickets {
		return fmt.Errorf("reserve %d on %s: %w", l.delta, l.ref, ErrMaxTickets)
	}
	return fmt.Errorf("reserve %d on %s: %w", l.delta, l.ref, ErrGuardFailure)
}

// drive walks a record through the forward protocol: reserve every leg,
// PENDING, SETTLING, settle every leg, SETTLED. Any guard failure reverts
// the record with force, since the caller owns it and knows it cannot
// proceed, and returns the failure.
func (e *Engine) drive(ctx context.Context, rec *Record) error {
	for _, l := range rec.legs() {
		ok, err := e.Reserve(ctx, l.ref, rec, l.delta)
		if err != nil {
			return err
		}
		if !ok {
			e.fail(ctx, rec)
			return guardErr(l)
		}
	}

	if err := e.step(ctx, rec, StatusPending); err != nil {
		return err
	}
	if err := e.step(ctx, rec, StatusSettling); err != nil {
		return err
	}

	for _, l := range rec.legs() {
		ok, err := e.Settle(ctx, l.ref, rec, l.delta)
		if err != nil {
			return err
		}
		if !ok {
			e.fail(ctx, rec)
			return fmt.Errorf("settle %d on %s: %w", l.delta, l.ref, ErrGuardFailure)
		}
	}

	return e.step(ctx, rec, StatusSettled)
}

// step advances the progress track and treats being overtaken as failure:
// the driver created this record, so anybody else moving it means it was
// grabbed by a reverter.
func (e *Engine) step(ctx context.Context, rec *Record, target ProgressStatus) error {
	ok, err := e.AdvanceProgress(ctx, rec, target)
	if err != nil {
		return err
	}
	if !ok {
		e.fail(ctx, rec)
		return fmt.Errorf("advance %s to %s: %w", rec.ID, target, ErrGuardFailure)
	}
	return nil
}

// fail compensates a record whose forward sequence broke mid-flight. The
// revert is forced and always awaited; an irrecoverable outcome is already
// logged and dumped by Revert itself.
func (e *Engine) fail(ctx context.Context, rec *Record) {
	if _, err := e.Revert(ctx, rec.ID, true); err != nil {
		e.log.Error().Err(err).
			Stringer("record", rec.ID).
			Stringer("domain", rec.Domain).
			Msg("compensation failed")
	}
}
