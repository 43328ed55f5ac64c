package ledgersaga

// Package ledgersaga moves value between the accounts of a game economy
// through multi-phase sagas with built-in compensation.
//
// Every flow drives a transaction record through a guarded status machine
// (INITIAL, PENDING, SETTLING, SETTLED) while reserving and then settling
// deltas against the touched accounts. Any guard failure walks the record
// backward through whatever phases completed, and a background reaper
// compensates records stuck past a grace interval.
//
// Overview
//
// 1. Build a store:
//    - Use `NewMemoryStore` for tests and single-process deployments, or
//      the `postgres` package for a durable store.
// 2. Create an `Engine` with `NewEngine`, wiring your logger, clock,
//    authorizer and randomness source through the options.
// 3. Run sagas through the orchestrators: `Transfer`, `ClaimPoints`,
//    `PurchaseTickets`, `PayBeneficiary`, `StartQuest`/`FinishQuest`/
//    `ClaimQuestRewards`, and `PlaceBid` for auctions.
// 4. Start a `Reaper` so stuck records get compensated.
//
// Example:
//
// For a runnable example, refer to the `examples/transfer` package.
