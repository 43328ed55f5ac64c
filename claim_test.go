package ledgersaga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimPointsSettlesVestedValue(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 0)

	stake := StakeInfo{StakeID: "s1", StakedAt: clock.Now().Add(-15 * 24 * time.Hour)}
	res, err := e.ClaimPoints(ctx, ClaimRequest{Wallet: "alice", Stake: stake})
	require.NoError(t, err)
	require.NotNil(t, res.Record)
	assert.Equal(t, StatusSettled, res.Record.Progress)
	assert.Equal(t, Quanta(85), res.Claimable)
	assert.True(t, res.Record.Meta.HasLocked)
	assert.Equal(t, "s1", res.Record.Meta.StakeID)

	assert.Equal(t, res.Claimable, balanceOf(t, store, "alice").Committed)

	// The stake's accrual account drained into the wallet.
	acct, err := store.GetAccount(ctx, StakeRef("s1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.Committed)
}

func TestClaimPointsNothingVested(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 0)

	// Inside the first period nothing is claimable, but value is locked.
	stake := StakeInfo{StakeID: "s1", StakedAt: clock.Now().Add(-12 * time.Hour)}
	res, err := e.ClaimPoints(ctx, ClaimRequest{Wallet: "alice", Stake: stake})
	require.NoError(t, err)
	assert.Nil(t, res.Record)
	assert.Zero(t, res.Claimable)
	assert.Equal(t, Quanta(5), res.Locked)
	assert.Equal(t, int64(0), balanceOf(t, store, "alice").Committed)
}

func TestClaimPointsSameWindowDoesNotDoubleMint(t *testing.T) {
	e, store, clock := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 0)

	stake := StakeInfo{StakeID: "s1", StakedAt: clock.Now().Add(-15 * 24 * time.Hour)}
	res, err := e.ClaimPoints(ctx, ClaimRequest{Wallet: "alice", Stake: stake})
	require.NoError(t, err)
	first := res.Claimable

	// The staking collaborator records the claim; the next computation
	// starts from the new watermark.
	stake.ClaimedAt = res.Record.Meta.LastClaimable

	res, err = e.ClaimPoints(ctx, ClaimRequest{Wallet: "alice", Stake: stake})
	require.NoError(t, err)
	assert.Nil(t, res.Record, "nothing new vested inside the same window")
	assert.Equal(t, first, balanceOf(t, store, "alice").Committed)
}

func TestClaimPointsInvalidAndUnauthorized(t *testing.T) {
	e, _, clock := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ClaimPoints(ctx, ClaimRequest{Wallet: "", Stake: StakeInfo{StakeID: "s1", StakedAt: clock.Now()}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = e.ClaimPoints(ctx, ClaimRequest{Wallet: "alice", Stake: StakeInfo{StakeID: ""}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	ed, _, _ := newTestEngine(t, WithAuthorizer(denyAll{}))
	_, err = ed.ClaimPoints(ctx, ClaimRequest{
		Wallet: "alice",
		Stake:  StakeInfo{StakeID: "s1", StakedAt: clock.Now().Add(-24 * time.Hour)},
	})
	assert.ErrorIs(t, err, ErrAuthorizationFailure)
}
