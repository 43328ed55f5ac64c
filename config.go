package ledgersaga

import "time"

// PointQuanta is the number of ledger quanta in one point. Balances are
// stored as int64 quanta; accrual math runs in float64 points and converts
// at the claim boundary.
const PointQuanta = 10_000

// Config carries the tunable knobs of the engine. There is no global state:
// a Config is built once at process start and handed to NewEngine.
type Config struct {
	// TransferGrace is the minimum age before a transfer, claim, raffle or
	// payment record may be reverted without force.
	TransferGrace time.Duration
	// QuestGrace is the same knob for the quest domains.
	QuestGrace time.Duration

	// StaminaCooldown is the elapsed time that regenerates one full unit
	// batch of stamina.
	StaminaCooldown time.Duration
	// StaminaMinInterval is the shortest gap between two regenerations of
	// the same pool.
	StaminaMinInterval time.Duration
	// StaminaUnits is the number of units regenerated per full cooldown.
	StaminaUnits int64
	// StaminaCapacity caps a stamina pool.
	StaminaCapacity int64
	// AuxBoostRate is the cooldown speedup granted per auxiliary asset.
	AuxBoostRate float64
	// AuxBoostMax caps how many auxiliary assets count toward the boost.
	AuxBoostMax int

	// LockingPeriods is the number of accrual periods over which staked
	// points vest before unlocking.
	LockingPeriods int
	// PeriodLength is the wall-clock length of one accrual period.
	PeriodLength time.Duration
	// PointsPerPeriod is the base accrual per period, in points.
	PointsPerPeriod float64

	// SweepSchedule is the cron expression driving the reaper.
	SweepSchedule string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TransferGrace:      5 * time.Minute,
		QuestGrace:         5 * time.Minute,
		StaminaCooldown:    24 * time.Hour,
		StaminaMinInterval: time.Hour,
		StaminaUnits:       10,
		StaminaCapacity:    50,
		AuxBoostRate:       0.02,
		AuxBoostMax:        10,
		LockingPeriods:     14,
		PeriodLength:       24 * time.Hour,
		PointsPerPeriod:    10,
		SweepSchedule:      "@every 5m",
	}
}

// grace returns the revert grace interval for a domain.
func (c Config) grace(d Domain) time.Duration {
	switch d {
	case DomainQuest, DomainQuestStart, DomainQuestFinish, DomainQuestClaim:
		return c.QuestGrace
	default:
		return c.TransferGrace
	}
}

// vesting builds the stake vesting schedule from the config.
func (c Config) vesting() VestingSchedule {
	return VestingSchedule{
		PointsPerPeriod: c.PointsPerPeriod,
		PeriodLength:    c.PeriodLength,
		LockingPeriods:  c.LockingPeriods,
	}
}
