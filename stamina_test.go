package ledgersaga

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCooldownRate(t *testing.T) {
	assert.InDelta(t, 1.0, CooldownRate(0, 10, 0.02), 1e-9)
	assert.InDelta(t, 1.1, CooldownRate(5, 10, 0.02), 1e-9)
	assert.InDelta(t, 1.2, CooldownRate(10, 10, 0.02), 1e-9)

	// The boost caps at maxAux assets and a negative count is treated as
	// none.
	assert.InDelta(t, 1.2, CooldownRate(25, 10, 0.02), 1e-9)
	assert.InDelta(t, 1.0, CooldownRate(-3, 10, 0.02), 1e-9)
}

func TestStaminaGain(t *testing.T) {
	assert.Equal(t, int64(10), StaminaGain(24*time.Hour, 24*time.Hour, 1, 10))
	assert.Equal(t, int64(5), StaminaGain(12*time.Hour, 24*time.Hour, 1, 10))
	assert.Equal(t, int64(11), StaminaGain(25*time.Hour, 24*time.Hour, 1.1, 10))
	assert.Equal(t, int64(0), StaminaGain(0, 24*time.Hour, 1, 10))
	assert.Equal(t, int64(0), StaminaGain(time.Hour, 0, 1, 10))
}

func TestRegenerateStaminaSeedsPool(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	acct, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Committed)
	assert.Equal(t, e.cfg.StaminaCapacity, acct.Capacity)
	assert.Equal(t, clock.Now(), acct.RegenAt)

	// The seeded pool is durable.
	stored, err := store.GetAccount(ctx, StaminaRef("alice"))
	require.NoError(t, err)
	assert.Equal(t, e.cfg.StaminaCapacity, stored.Capacity)
}

func TestRegenerateStaminaAccrues(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	acct, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.Committed)
	assert.Equal(t, clock.Now(), acct.RegenAt)

	// Below the minimum interval nothing happens.
	clock.Advance(30 * time.Minute)
	acct, err = e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.Committed)
}

func TestRegenerateStaminaClampsAtCapacity(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)

	clock.Advance(30 * 24 * time.Hour)
	acct, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, e.cfg.StaminaCapacity, acct.Committed)
}

func TestRegenerateStaminaAuxBoost(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RegenerateStamina(ctx, "alice", 10)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	acct, err := e.RegenerateStamina(ctx, "alice", 10)
	require.NoError(t, err)
	// floor(1.0 × 1.2 × 10)
	assert.Equal(t, int64(12), acct.Committed)
}

func TestStaminaWindowRace(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)
	ref := StaminaRef("alice")
	stale, err := store.GetAccount(ctx, ref)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = e.RegenerateStamina(ctx, "alice", 0)
	require.NoError(t, err)

	// A second accrual computed from the pre-regeneration stamp no-ops.
	ok, err := store.Accrue(ctx, ref, stale.RegenAt, stale.RegenNonce, 10, clock.Now(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)

	acct, err := store.GetAccount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.Committed, "the window credited exactly once")
}

func TestFillStamina(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	acct, err := e.FillStamina(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, e.cfg.StaminaCapacity, acct.Committed)
	assert.Equal(t, e.cfg.StaminaCapacity, acct.Capacity)
}
