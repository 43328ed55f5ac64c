package ledgersaga

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// CooldownRate returns the multiplicative regeneration rate for a
// participant holding auxCount auxiliary assets. Each asset speeds the
// cooldown by boost, up to maxAux assets.
func CooldownRate(auxCount, maxAux int, boost float64) float64 {
	if auxCount > maxAux {
		auxCount = maxAux
	}
	if auxCount < 0 {
		auxCount = 0
	}
	return 1 + float64(auxCount)*boost
}

// StaminaGain returns the units regenerated over an elapsed window:
// floor(elapsed/cooldown × rate × units).
func StaminaGain(elapsed, cooldown time.Duration, rate float64, units int64) int64 {
	if elapsed <= 0 || cooldown <= 0 {
		return 0
	}
	return int64(math.Floor(elapsed.Seconds() / cooldown.Seconds() * rate * float64(units)))
}

// RegenerateStamina credits a participant's stamina pool for the time
// elapsed since the last regeneration and returns the current pool.
//
// The credit goes through the store's stamped accrual, guarded by the
// regeneration stamp this call read, so two concurrent regenerations of the
// same elapsed window cannot both apply; the loser simply observes the
// winner's result. Pools regenerate at most once per the configured minimum
// interval and never past their capacity.
func (e *Engine) RegenerateStamina(ctx context.Context, participant string, auxCount int) (*Account, error) {
	ref := StaminaRef(participant)
	acct, err := e.store.GetAccount(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		seed := &Account{Ref: ref, Capacity: e.cfg.StaminaCapacity, RegenAt: e.clock.Now()}
		created, err := e.store.EnsureAccount(ctx, seed)
		if err != nil {
			return nil, err
		}
		if created {
			return seed, nil
		}
		// Lost the seeding race; fall through with the winner's pool.
		if acct, err = e.store.GetAccount(ctx, ref); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if now.Sub(acct.RegenAt) < e.cfg.StaminaMinInterval {
		return acct, nil
	}

	rate := CooldownRate(auxCount, e.cfg.AuxBoostMax, e.cfg.AuxBoostRate)
	gain := StaminaGain(now.Sub(acct.RegenAt), e.cfg.StaminaCooldown, rate, e.cfg.StaminaUnits)
	if gain <= 0 {
		return acct, nil
	}

	ok, err := e.store.Accrue(ctx, ref, acct.RegenAt, acct.RegenNonce, gain, now, uuid.New())
	if err != nil {
		return nil, err
	}
	if !ok {
		e.log.Debug().Str("participant", participant).Msg("stamina regeneration lost the window race")
	}
	return e.store.GetAccount(ctx, ref)
}

// FillStamina tops a participant's pool to its capacity. Operator repair
// path, not part of any saga.
func (e *Engine) FillStamina(ctx context.Context, participant string) (*Account, error) {
	ref := StaminaRef(participant)
	acct, err := e.store.GetAccount(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		acct = &Account{Ref: ref, Capacity: e.cfg.StaminaCapacity}
	} else if err != nil {
		return nil, err
	}
	acct.Committed = acct.Capacity
	acct.RegenAt = e.clock.Now()
	if err := e.store.PutAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
