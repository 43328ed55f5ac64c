package ledgersaga

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateRecordRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore(newFixedClock())
	ctx := context.Background()

	rec := &Record{ID: uuid.New(), Domain: DomainTransfer, Source: BalanceRef("a")}
	require.NoError(t, store.CreateRecord(ctx, rec))
	assert.Error(t, store.CreateRecord(ctx, rec))

	_, err := store.GetRecord(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSweepOrder(t *testing.T) {
	clock := newFixedClock()
	store := NewMemoryStore(clock)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec := &Record{ID: uuid.New(), Domain: DomainTransfer, Source: BalanceRef("a")}
		require.NoError(t, store.CreateRecord(ctx, rec))
		ids = append(ids, rec.ID)
		clock.Advance(time.Minute)
	}
	// A record of another domain inside the same window.
	other := &Record{ID: uuid.New(), Domain: DomainClaim, Source: BalanceRef("a")}
	require.NoError(t, store.CreateRecord(ctx, other))

	stuck, err := store.SweepStuck(ctx, DomainTransfer, clock.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, stuck, 3, "the sweep stays inside its domain")
	for i, rec := range stuck {
		assert.Equal(t, ids[i], rec.ID, "oldest first")
	}
}

func TestMemoryStoreSweepTracksTransitionTime(t *testing.T) {
	clock := newFixedClock()
	store := NewMemoryStore(clock)
	ctx := context.Background()

	rec := &Record{ID: uuid.New(), Domain: DomainTransfer, Source: BalanceRef("a")}
	require.NoError(t, store.CreateRecord(ctx, rec))
	created := clock.Now()

	clock.Advance(10 * time.Minute)
	ok, err := store.AdvanceProgress(ctx, rec.ID, StatusPending)
	require.NoError(t, err)
	require.True(t, ok)

	// The record moved recently, so a cutoff right after creation misses it.
	stuck, err := store.SweepStuck(ctx, DomainTransfer, created.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stuck)

	stuck, err = store.SweepStuck(ctx, DomainTransfer, clock.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, stuck, 1)
}

func TestMemoryStoreEnsureAccount(t *testing.T) {
	store := NewMemoryStore(newFixedClock())
	ctx := context.Background()
	ref := TicketsRef("r1", "w")

	created, err := store.EnsureAccount(ctx, &Account{Ref: ref, Capacity: 5})
	require.NoError(t, err)
	assert.True(t, created)

	// A second ensure never clobbers the existing document.
	ok, err := store.Reserve(ctx, ref, uuid.New(), 3)
	require.NoError(t, err)
	require.True(t, ok)

	created, err = store.EnsureAccount(ctx, &Account{Ref: ref, Capacity: 99})
	require.NoError(t, err)
	assert.False(t, created)

	acct, err := store.GetAccount(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, int64(5), acct.Capacity)
	assert.Equal(t, int64(3), acct.Pending)
}

func TestMemoryStoreClonesOnRead(t *testing.T) {
	store := NewMemoryStore(newFixedClock())
	ctx := context.Background()

	rec := &Record{ID: uuid.New(), Domain: DomainTransfer, Source: BalanceRef("a"), Meta: Meta{Participants: []string{"p1"}}}
	require.NoError(t, store.CreateRecord(ctx, rec))

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	got.Meta.Participants[0] = "mutated"

	again, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", again.Meta.Participants[0])
}
