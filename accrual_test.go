package ledgersaga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchedule() VestingSchedule {
	return VestingSchedule{PointsPerPeriod: 10, PeriodLength: 24 * time.Hour, LockingPeriods: 14}
}

func TestAccruePartialPeriodIsAllLocked(t *testing.T) {
	s := testSchedule()
	stakedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	totals := s.Accrue(StakeInfo{StakeID: "s1", StakedAt: stakedAt}, stakedAt.Add(12*time.Hour))
	assert.Zero(t, totals.Claimable, "nothing vests inside the first period")
	assert.InDelta(t, 5.0, totals.Locked, 1e-9)
}

func TestAccruePastLockingHorizon(t *testing.T) {
	s := testSchedule()
	stakedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// 15 full periods: the oldest period has fully unlocked, the newest 14
	// are still vesting proportionally.
	totals := s.Accrue(StakeInfo{StakeID: "s1", StakedAt: stakedAt}, stakedAt.Add(15*24*time.Hour))
	assert.InDelta(t, 85.0, totals.Claimable, 1e-9)
	assert.InDelta(t, 65.0, totals.Locked, 1e-9)

	// Claimable and locked together account for every accrued point.
	assert.InDelta(t, 150.0, totals.Claimable+totals.Locked, 1e-9)
}

func TestAccrueUnstakeFreezesAccrual(t *testing.T) {
	s := testSchedule()
	stakedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stake := StakeInfo{
		StakeID:    "s1",
		StakedAt:   stakedAt,
		UnstakedAt: stakedAt.Add(5 * 24 * time.Hour),
	}

	// Long after the unstake everything accrued before it has vested and
	// nothing new appeared.
	totals := s.Accrue(stake, stakedAt.Add(30*24*time.Hour))
	assert.InDelta(t, 50.0, totals.Claimable, 1e-9)
	assert.InDelta(t, 0.0, totals.Locked, 1e-9)
}

func TestAccrueAfterMidwayClaim(t *testing.T) {
	s := testSchedule()
	stakedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stake := StakeInfo{
		StakeID:   "s1",
		StakedAt:  stakedAt,
		ClaimedAt: stakedAt.Add(20 * 24 * time.Hour),
	}

	totals := s.Accrue(stake, stakedAt.Add(25*24*time.Hour))
	assert.InDelta(t, 750.0/14, totals.Claimable, 1e-9)
	assert.Greater(t, totals.Locked, 0.0)
}

func TestAccrueZeroSchedule(t *testing.T) {
	var s VestingSchedule
	totals := s.Accrue(StakeInfo{StakeID: "s1", StakedAt: time.Now()}, time.Now())
	assert.Zero(t, totals.Claimable)
	assert.Zero(t, totals.Locked)
}

func TestLastClaimable(t *testing.T) {
	s := testSchedule()
	stakedAt := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, stakedAt, s.LastClaimable(stakedAt, stakedAt.Add(12*time.Hour)))
	assert.Equal(t, stakedAt.Add(24*time.Hour), s.LastClaimable(stakedAt, stakedAt.Add(36*time.Hour)))
	assert.Equal(t, stakedAt.Add(48*time.Hour), s.LastClaimable(stakedAt, stakedAt.Add(48*time.Hour)))
}

func TestQuantaConversion(t *testing.T) {
	require.Equal(t, int64(10_000), Quanta(1))
	require.Equal(t, int64(5_000), Quanta(0.5))
	require.Equal(t, int64(33_333), Quanta(3.33333))
	assert.InDelta(t, 3.33333, Points(33_333), 1e-4)
	assert.Equal(t, int64(0), Quanta(0))
}
