package ledgersaga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedClock is a settable time source shared by the engine and its store.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *MemoryStore, *fixedClock) {
	t.Helper()
	clock := newFixedClock()
	store := NewMemoryStore(clock)
	opts = append([]EngineOption{WithClock(clock)}, opts...)
	return NewEngine(DefaultConfig(), store, opts...), store, clock
}

func seedBalance(t *testing.T, store *MemoryStore, wallet string, quanta int64) {
	t.Helper()
	require.NoError(t, store.PutAccount(context.Background(),
		&Account{Ref: BalanceRef(wallet), Committed: quanta}))
}

func balanceOf(t *testing.T, store *MemoryStore, wallet string) *Account {
	t.Helper()
	acct, err := store.GetAccount(context.Background(), BalanceRef(wallet))
	require.NoError(t, err)
	return acct
}
