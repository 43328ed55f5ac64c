package ledgersaga

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Revert compensates a record, undoing whatever the forward protocol
// completed. Without force the record must be older than its domain's grace
// interval, so merely slow sagas survive; a SETTLED record never reverts at
// all.
//
// The walk is phase aware: a record caught SETTLING is first un-settled
// back to PENDING, then un-reserved like any PENDING record. Every inverse
// step is the same guarded primitive as the forward step, so the walk is
// idempotent and safe to interleave with the reaper or a second reverter.
//
// The return value reports whether the record reached CANCELED. A false
// return with an InconsistencyError means the walk completed but the record
// did not terminate; it has been logged and dumped for manual audit.
func (e *Engine) Revert(ctx context.Context, id uuid.UUID, force bool) (bool, error) {
	rec, err := e.store.GetRecord(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Cancel == Canceled {
		return true, nil
	}

	var olderThan time.Time
	if !force {
		olderThan = e.clock.Now().Add(-e.cfg.grace(rec.Domain))
	}
	ok, err := e.AdvanceCancel(ctx, rec, CancelInitial, olderThan)
	if err != nil {
		return false, err
	}
	if !ok {
		// Terminal, too young, or another reverter got here first.
		cur, err := e.store.GetRecord(ctx, id)
		if err != nil {
			return false, err
		}
		if cur.Cancel != Canceled && cur.Cancel != CancelNone {
			// Another reverter is mid-walk; let it finish.
			return false, nil
		}
		return cur.Cancel == Canceled, nil
	}

	if _, err := e.AdvanceRevert(ctx, rec, RevertInitial); err != nil {
		return false, err
	}

	legs := rec.legs()

	if rec.Progress == StatusSettling {
		if _, err := e.AdvanceRevert(ctx, rec, RevertSettling); err != nil {
			return false, err
		}
		for _, l := range legs {
			// No-op when a previous attempt already pushed it back.
			if _, err := e.Unsettle(ctx, l.ref, rec, l.delta); err != nil {
				return false, err
			}
		}
		if _, err := e.store.RegressProgress(ctx, rec.ID, StatusPending); err != nil {
			return false, err
		}
		rec.Progress = StatusPending
	}

	if _, err := e.AdvanceRevert(ctx, rec, RevertPending); err != nil {
		return false, err
	}
	if _, err := e.AdvanceCancel(ctx, rec, CancelPending, time.Time{}); err != nil {
		return false, err
	}
	for _, l := range legs {
		// No-op when the reservation never happened or is already gone.
		if _, err := e.Unreserve(ctx, l.ref, rec, l.delta); err != nil {
			return false, err
		}
	}

	if _, err := e.AdvanceRevert(ctx, rec, Reverted); err != nil {
		return false, err
	}
	done, err := e.AdvanceCancel(ctx, rec, Canceled, time.Time{})
	if err != nil {
		return false, err
	}
	if !done {
		cur, err := e.store.GetRecord(ctx, id)
		if err == nil && cur.Cancel == Canceled {
			return true, nil
		}
		e.metrics.Inconsistencies.Inc()
		inc := &InconsistencyError{RecordID: rec.ID, Domain: rec.Domain}
		e.log.Error().
			Stringer("record", rec.ID).
			Stringer("domain", rec.Domain).
			Msg("revert did not reach CANCELED, manual audit required")
		if e.audit != nil {
			if cur == nil {
				cur = rec
			}
			if err := e.audit.Dump(cur); err != nil {
				e.log.Error().Err(err).Stringer("record", rec.ID).Msg("audit dump failed")
			}
		}
		return false, inc
	}

	e.metrics.Reverted.WithLabelValues(rec.Domain.String()).Inc()
	e.log.Info().
		Stringer("record", rec.ID).
		Stringer("domain", rec.Domain).
		Bool("forced", force).
		Msg("record reverted")
	return true, nil
}
