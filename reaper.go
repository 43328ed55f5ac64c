package ledgersaga

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SweepReport summarizes one reaper pass.
type SweepReport struct {
	Swept        int
	Reverted     int
	Skipped      int
	Inconsistent int
}

// Reaper periodically sweeps every domain for records stuck in a
// non-terminal phase past the grace interval and compensates them. It is
// the only actor that reverts records it does not own, and it never forces:
// a record younger than the grace interval survives the sweep untouched.
type Reaper struct {
	engine  *Engine
	domains []Domain
	cron    *cron.Cron
	log     zerolog.Logger
}

// NewReaper creates a reaper over the engine's domains. A nil domain list
// sweeps all of them.
func NewReaper(e *Engine, domains []Domain) *Reaper {
	if domains == nil {
		domains = Domains
	}
	return &Reaper{
		engine:  e,
		domains: domains,
		cron:    cron.New(),
		log:     e.log.With().Str("component", "reaper").Logger(),
	}
}

// Start schedules the sweep on the configured cron expression.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(r.engine.cfg.SweepSchedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("sweep failed")
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the schedule and returns a context that is done once any
// in-flight sweep has finished.
func (r *Reaper) Stop() context.Context {
	return r.cron.Stop()
}

// Sweep runs one pass over every domain, reverting stuck records without
// force. Records another writer finished or grabbed in the meantime count
// as skipped, not failed.
func (r *Reaper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := r.engine.clock.Now()

	for _, d := range r.domains {
		cutoff := now.Add(-r.engine.cfg.grace(d))
		stuck, err := r.engine.store.SweepStuck(ctx, d, cutoff)
		if err != nil {
			return report, err
		}

		for _, rec := range stuck {
			report.Swept++
			r.engine.metrics.Swept.Inc()
			r.log.Debug().
				Stringer("record", rec.ID).
				Stringer("domain", d).
				Stringer("status", rec.Progress).
				Msg("stuck record found")

			done, err := r.engine.Revert(ctx, rec.ID, false)
			var inc *InconsistencyError
			switch {
			case errors.As(err, &inc):
				report.Inconsistent++
			case err != nil:
				return report, err
			case done:
				report.Reverted++
			default:
				report.Skipped++
			}
		}
	}

	r.log.Info().
		Int("swept", report.Swept).
		Int("reverted", report.Reverted).
		Int("skipped", report.Skipped).
		Int("inconsistent", report.Inconsistent).
		Msg("sweep complete")
	return report, nil
}
