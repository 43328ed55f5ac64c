package ledgersaga

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotReached(t *testing.T) {
	table := standardProgress

	assert.True(t, notReached(table, StatusInitial, StatusPending))
	assert.True(t, notReached(table, StatusInitial, StatusSettled))
	assert.True(t, notReached(table, StatusPending, StatusSettling))

	// At or past the target the transition is rejected, which is what makes
	// a retried transition idempotent.
	assert.False(t, notReached(table, StatusPending, StatusPending))
	assert.False(t, notReached(table, StatusSettled, StatusPending))
	assert.False(t, notReached(table, StatusSettling, StatusPending))

	// A target outside the ordering is never reached.
	assert.False(t, notReached(table, StatusInitial, StatusStarted))
}

func TestQuestProgressOrdering(t *testing.T) {
	table := progressTable(DomainQuest)
	assert.True(t, notReached(table, StatusSettling, StatusStarted))
	assert.True(t, notReached(table, StatusStarted, StatusComplete))
	assert.True(t, notReached(table, StatusComplete, StatusClaimed))
	assert.False(t, notReached(table, StatusClaimed, StatusComplete))

	// Quest records settle through STARTED; plain SETTLED is not part of
	// their walk.
	assert.False(t, notReached(table, StatusInitial, StatusSettled))
	assert.Equal(t, StatusClaimed, TerminalProgress(DomainQuest))
	assert.Equal(t, StatusSettled, TerminalProgress(DomainTransfer))

	// Quest executions rest from their first milestone on; everything else
	// rests only at its terminal state.
	assert.Equal(t, StatusStarted, SweepCeiling(DomainQuest))
	assert.Equal(t, StatusSettled, SweepCeiling(DomainTransfer))
	assert.Equal(t, StatusSettled, SweepCeiling(DomainQuestStart))
}

func TestCancelFreezesProgress(t *testing.T) {
	store := NewMemoryStore(newFixedClock())
	ctx := context.Background()

	rec := &Record{ID: uuid.New(), Domain: DomainTransfer, Source: BalanceRef("a"), Timestamp: time.Now()}
	require.NoError(t, store.CreateRecord(ctx, rec))

	ok, err := store.AdvanceProgress(ctx, rec.ID, StatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AdvanceCancel(ctx, rec.ID, CancelInitial, time.Time{})
	require.NoError(t, err)
	require.True(t, ok)

	// A set cancel track freezes progress permanently.
	ok, err = store.AdvanceProgress(ctx, rec.ID, StatusSettling)
	require.NoError(t, err)
	assert.False(t, ok)

	cur, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, cur.Progress)
	assert.Equal(t, CancelInitial, cur.Cancel)
}

func TestCancelGuardedByRevertTrack(t *testing.T) {
	rec := &Record{Domain: DomainTransfer, Cancel: CancelInitial, Revert: RevertSettling}

	// CANCEL_PENDING tolerates a revert up to REVERT_PENDING.
	assert.True(t, canAdvanceCancel(rec, CancelPending))

	// CANCELED requires the revert walk complete or not past REVERTED.
	rec.Revert = RevertPending
	rec.Cancel = CancelPending
	assert.True(t, canAdvanceCancel(rec, Canceled))

	// Cancel never regresses.
	rec.Cancel = Canceled
	assert.False(t, canAdvanceCancel(rec, CancelPending))
	assert.False(t, canAdvanceCancel(rec, Canceled))
}

func TestRevertRequiresOpenCancellation(t *testing.T) {
	rec := &Record{Domain: DomainTransfer}
	assert.False(t, canAdvanceRevert(rec, RevertInitial))

	rec.Cancel = CancelInitial
	assert.True(t, canAdvanceRevert(rec, RevertInitial))

	rec.Revert = RevertPending
	assert.False(t, canAdvanceRevert(rec, RevertInitial))
	assert.True(t, canAdvanceRevert(rec, Reverted))
}

func TestStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StatusSettling)
	require.NoError(t, err)
	assert.Equal(t, `"SETTLING"`, string(data))

	var s ProgressStatus
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, StatusSettling, s)

	var c CancelStatus
	require.NoError(t, json.Unmarshal([]byte(`"CANCEL_PENDING"`), &c))
	assert.Equal(t, CancelPending, c)

	var r RevertStatus
	require.NoError(t, json.Unmarshal([]byte(`"REVERTED"`), &r))
	assert.Equal(t, Reverted, r)

	assert.Error(t, json.Unmarshal([]byte(`"BOGUS"`), &s))
}
