package ledgersaga

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchaseTickets(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 100)

	rec, err := e.PurchaseTickets(ctx, TicketPurchaseRequest{
		Wallet: "alice", RaffleID: "r1", Quantity: 3, Price: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, rec.Progress)
	assert.Equal(t, int64(94), balanceOf(t, store, "alice").Committed)

	count, err := e.TicketCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPurchaseTicketsMaxPerWallet(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 100)

	_, err := e.PurchaseTickets(ctx, TicketPurchaseRequest{
		Wallet: "alice", RaffleID: "r1", Quantity: 3, Price: 2, MaxPerWallet: 5,
	})
	require.NoError(t, err)

	// Three more would exceed the five-ticket cap; the whole purchase is
	// rejected and compensated, not partially filled.
	_, err = e.PurchaseTickets(ctx, TicketPurchaseRequest{
		Wallet: "alice", RaffleID: "r1", Quantity: 3, Price: 2, MaxPerWallet: 5,
	})
	require.ErrorIs(t, err, ErrMaxTickets)
	assert.Equal(t, "Maximum tickets reached", UserMessage(err))

	count, err := e.TicketCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, int64(94), balanceOf(t, store, "alice").Committed,
		"the debit of the rejected purchase was unwound")

	// Two still fit.
	_, err = e.PurchaseTickets(ctx, TicketPurchaseRequest{
		Wallet: "alice", RaffleID: "r1", Quantity: 2, Price: 2, MaxPerWallet: 5,
	})
	require.NoError(t, err)
	count, err = e.TicketCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestPurchaseTicketsInsufficientPoints(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 5)

	_, err := e.PurchaseTickets(ctx, TicketPurchaseRequest{
		Wallet: "alice", RaffleID: "r1", Quantity: 3, Price: 2,
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(5), balanceOf(t, store, "alice").Committed)

	count, err := e.TicketCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConcurrentPurchasesRespectCap(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "alice", 1000)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.PurchaseTickets(ctx, TicketPurchaseRequest{
				Wallet: "alice", RaffleID: "r1", Quantity: 2, Price: 1, MaxPerWallet: 6,
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrMaxTickets)
		}
	}
	assert.Equal(t, 3, succeeded)

	count, err := e.TicketCount(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(6), count, "racing purchases never squeeze past the cap")
}

func TestPayBeneficiary(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	seedBalance(t, store, "winner", 0)

	rec, err := e.PayBeneficiary(ctx, PaymentRequest{
		Wallet: "winner", RaffleID: "r1", PaymentID: "p1", Amount: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSettled, rec.Progress)
	assert.Equal(t, "r1", rec.Meta.RaffleID)
	assert.Equal(t, "p1", rec.Meta.PaymentID)
	assert.Equal(t, int64(500), balanceOf(t, store, "winner").Committed)
}

func TestPayBeneficiaryInvalid(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.PayBeneficiary(context.Background(), PaymentRequest{Wallet: "w", RaffleID: "", Amount: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}
