package ledgersaga

import (
	"math"
	"time"
)

// VestingSchedule describes how staked points vest: a fixed accrual per
// period, locked over a horizon of LockingPeriods periods.
type VestingSchedule struct {
	PointsPerPeriod float64
	PeriodLength    time.Duration
	LockingPeriods  int
}

// StakeInfo is the accrual state of one stake, owned by the staking
// collaborator. A zero ClaimedAt means nothing was ever claimed; a zero
// UnstakedAt means the stake is still active.
type StakeInfo struct {
	StakeID    string
	StakedAt   time.Time
	ClaimedAt  time.Time
	UnstakedAt time.Time
}

// VestingTotals are the point sub-totals of one accrual computation.
type VestingTotals struct {
	Claimable float64
	Locked    float64
}

// Accrue computes the claimable and still-locked points of a stake at the
// given instant.
//
// The computation iterates period-by-period from the last claimed point to
// now (or to the unstake point, which freezes accrual). Periods older than
// the locking horizon contribute a full per-period share to claimable,
// periods inside the horizon contribute proportionally to locked, and the
// newest partial period contributes a fractional share. Periods the owner
// already claimed are subtracted per period, not in bulk, which is what
// makes the fractional weighting come out right when claims land mid-period.
func (s VestingSchedule) Accrue(stake StakeInfo, now time.Time) VestingTotals {
	period := s.PeriodLength.Seconds()
	locking := float64(s.LockingPeriods)
	if period <= 0 || locking <= 0 {
		return VestingTotals{}
	}

	claimedAt := stake.ClaimedAt
	if claimedAt.IsZero() {
		claimedAt = stake.StakedAt
	}

	prevClaimed := claimedAt.Sub(stake.StakedAt).Seconds() / period
	prevClaimable := prevClaimed
	unstaked := !stake.UnstakedAt.IsZero()
	if unstaked {
		prevClaimable = stake.UnstakedAt.Sub(stake.StakedAt).Seconds() / period
	}
	currentPeriod := now.Sub(claimedAt).Seconds() / period

	// Periods past the locking horizon have nothing left to unlock; shift
	// the iteration window back onto the horizon.
	var overflow float64
	if prevClaimable > locking {
		overflow = math.Ceil(prevClaimable) - locking
	}
	prevClaimable -= overflow
	prevClaimed -= overflow

	claimablePeriod := prevClaimable
	if !unstaked {
		claimablePeriod += currentPeriod
	}
	iterationPeriod := prevClaimed + currentPeriod

	var totals VestingTotals
	ci := claimablePeriod
	li := math.Min(claimablePeriod, prevClaimed)
	for p := iterationPeriod; p > 0; p, ci, li = p-1, ci-1, li-1 {
		var amount float64
		if ci > 0 {
			amount = 1
		}
		if 0 < ci && ci < 1 {
			amount = ci - math.Floor(ci)
		}

		var claimedAmt float64
		if li < 1 {
			claimedAmt = math.Max(0, li)
		} else {
			claimedAmt = math.Min(math.Floor(li), locking)
		}

		var unlockedAmt float64
		if p < 1 {
			unlockedAmt = math.Max(0, p)
		} else {
			unlockedAmt = math.Min(math.Floor(p), locking)
		}

		lockedAmt := locking
		if unlockedAmt >= 1 {
			lockedAmt = locking - unlockedAmt
		}

		var points float64
		if p >= 1 {
			points = (unlockedAmt - claimedAmt) / locking * s.PointsPerPeriod * amount
		}
		locked := lockedAmt / locking * s.PointsPerPeriod * amount

		if currentPeriod < 1 {
			points = 0
		}

		totals.Claimable += points
		totals.Locked += locked
	}

	return totals
}

// LastClaimable returns the start of the newest fully elapsed period of a
// stake, which is the claim watermark a CLAIM record carries.
func (s VestingSchedule) LastClaimable(stakedAt, now time.Time) time.Time {
	if s.PeriodLength <= 0 {
		return now
	}
	n := math.Floor(now.Sub(stakedAt).Seconds() / s.PeriodLength.Seconds())
	return stakedAt.Add(time.Duration(n) * s.PeriodLength)
}

// Quanta converts points to int64 ledger quanta.
func Quanta(points float64) int64 {
	return int64(math.Round(points * PointQuanta))
}

// Points converts ledger quanta back to points.
func Points(quanta int64) float64 {
	return float64(quanta) / PointQuanta
}
