package ledgersaga

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine drives the ledger sagas against a Store. It holds no business
// state of its own; everything durable lives behind the store contract, and
// everything here is safe for concurrent use.
type Engine struct {
	cfg     Config
	store   Store
	auth    Authorizer
	rand    RandomSource
	clock   Clock
	log     zerolog.Logger
	journal *Journal
	audit   *AuditTrail
	metrics *Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the engine time source.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) { e.clock = c }
}

// WithAuthorizer sets the authorization verifier.
func WithAuthorizer(a Authorizer) EngineOption {
	return func(e *Engine) { e.auth = a }
}

// WithRandomSource sets the randomness source used for winner draws.
func WithRandomSource(r RandomSource) EngineOption {
	return func(e *Engine) { e.rand = r }
}

// WithAuditTrail sets the audit trail for irrecoverable records.
func WithAuditTrail(a *AuditTrail) EngineOption {
	return func(e *Engine) { e.audit = a }
}

// WithMetrics sets the engine metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine over the given store.
func NewEngine(cfg Config, store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   store,
		auth:    AllowAll{},
		clock:   SystemClock{},
		log:     zerolog.Nop(),
		journal: NewJournal(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rand == nil {
		e.rand = NewPseudoRandom()
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}
	return e
}

// Journal returns the engine's transition journal.
func (e *Engine) Journal() *Journal {
	return e.journal
}

// Store returns the engine's store handle.
func (e *Engine) Store() Store {
	return e.store
}

// CreateRecord creates a saga record in its INITIAL state.
func (e *Engine) CreateRecord(ctx context.Context, domain Domain, source AccountRef, dest *AccountRef, amount int64) (*Record, error) {
	rec := &Record{
		ID:          uuid.New(),
		Domain:      domain,
		Source:      source,
		Destination: dest,
		Amount:      amount,
		Progress:    StatusInitial,
		Timestamp:   e.clock.Now(),
	}
	return rec, e.insert(ctx, rec)
}

// insert stores a fully built record, assigning identity and timestamp if
// the orchestrator left them zero.
func (e *Engine) insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = e.clock.Now()
	}
	if err := e.store.CreateRecord(ctx, rec); err != nil {
		return err
	}
	e.journal.Record(&TrackEvent{RecordID: rec.ID, Domain: rec.Domain, Track: TrackProgress, To: rec.Progress.String(), At: rec.Timestamp})
	return nil
}

// AdvanceProgress moves the record's progress track to target. The record's
// in-memory copy is updated on success so callers can keep driving it.
func (e *Engine) AdvanceProgress(ctx context.Context, rec *Record, target ProgressStatus) (bool, error) {
	ok, err := e.store.AdvanceProgress(ctx, rec.ID, target)
	if err != nil || !ok {
		return ok, err
	}
	rec.Progress = target
	e.journal.Record(&TrackEvent{RecordID: rec.ID, Domain: rec.Domain, Track: TrackProgress, To: target.String(), At: e.clock.Now()})
	if target == StatusSettled {
		e.metrics.Settled.WithLabelValues(rec.Domain.String()).Inc()
	}
	return true, nil
}

// AdvanceCancel moves the record's cancel track to target.
func (e *Engine) AdvanceCancel(ctx context.Context, rec *Record, target CancelStatus, olderThan time.Time) (bool, error) {
	ok, err := e.store.AdvanceCancel(ctx, rec.ID, target, olderThan)
	if err != nil || !ok {
		return ok, err
	}
	rec.Cancel = target
	e.journal.Record(&TrackEvent{RecordID: rec.ID, Domain: rec.Domain, Track: TrackCancel, To: target.String(), At: e.clock.Now()})
	return true, nil
}

// AdvanceRevert moves the record's revert track to target.
func (e *Engine) AdvanceRevert(ctx context.Context, rec *Record, target RevertStatus) (bool, error) {
	ok, err := e.store.AdvanceRevert(ctx, rec.ID, target)
	if err != nil || !ok {
		return ok, err
	}
	rec.Revert = target
	e.journal.Record(&TrackEvent{RecordID: rec.ID, Domain: rec.Domain, Track: TrackRevert, To: target.String(), At: e.clock.Now()})
	return true, nil
}
