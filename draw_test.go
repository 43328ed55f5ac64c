package ledgersaga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// firstIndex always picks the front of the pool.
type firstIndex struct{}

func (firstIndex) DrawIndex(ctx context.Context, max int) (int, error) {
	return 0, nil
}

// noRandom fails every draw; the single-entrant short circuit must never
// reach it.
type noRandom struct{}

func (noRandom) DrawIndex(ctx context.Context, max int) (int, error) {
	return 0, errors.New("randomness must not be consulted")
}

func TestDrawWinnersUnique(t *testing.T) {
	e, _, _ := newTestEngine(t, WithRandomSource(firstIndex{}))

	entrants := []Entrant{
		{Wallet: "alice", Tickets: 3},
		{Wallet: "bob", Tickets: 1},
		{Wallet: "carol", Tickets: 2},
	}
	winners, err := e.DrawWinners(context.Background(), entrants, 3, true)
	require.NoError(t, err)
	require.Len(t, winners, 3)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, winners,
		"unique draw removes every entry of a winner")
}

func TestDrawWinnersRepeatable(t *testing.T) {
	e, _, _ := newTestEngine(t, WithRandomSource(firstIndex{}))

	entrants := []Entrant{{Wallet: "alice", Tickets: 2}, {Wallet: "bob", Tickets: 2}}
	winners, err := e.DrawWinners(context.Background(), entrants, 4, false)
	require.NoError(t, err)
	require.Len(t, winners, 4)

	counts := map[string]int{}
	for _, w := range winners {
		counts[w]++
	}
	assert.Equal(t, 2, counts["alice"])
	assert.Equal(t, 2, counts["bob"])
}

func TestDrawWinnersSingleEntrantShortCircuits(t *testing.T) {
	e, _, _ := newTestEngine(t, WithRandomSource(noRandom{}))

	entrants := []Entrant{{Wallet: "alice", Tickets: 5}}
	winners, err := e.DrawWinners(context.Background(), entrants, 3, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "alice", "alice"}, winners)

	// With unique removal the single entrant wins once and the pool drains.
	winners, err = e.DrawWinners(context.Background(), entrants, 3, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, winners)
}

func TestDrawWinnersEdgeCases(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.DrawWinners(context.Background(), nil, 0, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	winners, err := e.DrawWinners(context.Background(), nil, 2, false)
	require.NoError(t, err)
	assert.Empty(t, winners)

	// Zero-ticket entrants contribute nothing to the pool.
	winners, err = e.DrawWinners(context.Background(), []Entrant{{Wallet: "alice", Tickets: 0}}, 1, false)
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestPseudoRandomBounds(t *testing.T) {
	p := NewPseudoRandom()
	for i := 0; i < 100; i++ {
		n, err := p.DrawIndex(context.Background(), 7)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 7)
	}
	_, err := p.DrawIndex(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
