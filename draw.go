package ledgersaga

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/halcyonforge/ledgersaga/set"
)

// Entrant is one raffle participant and the tickets they hold.
type Entrant struct {
	Wallet  string
	Tickets int64
}

// PseudoRandom is a local randomness source. It backs shuffling and serves
// as the draw fallback when no external source is wired; production draws
// should use the randomorg client instead.
type PseudoRandom struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPseudoRandom creates a time-seeded local source.
func NewPseudoRandom() *PseudoRandom {
	return &PseudoRandom{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// DrawIndex returns a uniform integer in [0, max).
func (p *PseudoRandom) DrawIndex(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("draw index: %w", ErrInvalidRequest)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(max), nil
}

// DrawWinners draws winners from a weighted pool: each entrant's wallet is
// repeated once per ticket held, the pool is Fisher-Yates shuffled, and
// each winner index comes from the engine's randomness source. When unique
// is set, all of a winner's remaining entries leave the pool before the
// next draw. A pool holding a single entrant short-circuits to that entrant
// without consulting randomness.
func (e *Engine) DrawWinners(ctx context.Context, entrants []Entrant, winners int, unique bool) ([]string, error) {
	if winners <= 0 {
		return nil, fmt.Errorf("draw winners: %w", ErrInvalidRequest)
	}

	var pool []string
	for _, en := range entrants {
		for i := int64(0); i < en.Tickets; i++ {
			pool = append(pool, en.Wallet)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(e.clock.Now().UnixNano()))
	for i := len(pool) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}

	var result []string
	for len(result) < winners && len(pool) > 0 {
		var winner string
		if singleEntrant(pool) {
			winner = pool[0]
		} else {
			idx, err := e.rand.DrawIndex(ctx, len(pool))
			if err != nil {
				return nil, fmt.Errorf("draw winners: %w", err)
			}
			winner = pool[idx]
		}

		result = append(result, winner)

		if unique {
			pool = removeAll(pool, winner)
		} else {
			pool = removeOne(pool, winner)
		}
	}

	e.log.Info().Int("winners", len(result)).Int("requested", winners).Msg("raffle draw complete")
	return result, nil
}

func singleEntrant(pool []string) bool {
	var wallets set.Set[string]
	for _, w := range pool {
		wallets.Insert(w)
	}
	return wallets.Len() == 1
}

func removeAll(pool []string, wallet string) []string {
	out := pool[:0]
	for _, w := range pool {
		if w != wallet {
			out = append(out, w)
		}
	}
	return out
}

func removeOne(pool []string, wallet string) []string {
	for i, w := range pool {
		if w == wallet {
			return append(pool[:i], pool[i+1:]...)
		}
	}
	return pool
}
