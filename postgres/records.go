package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/halcyonforge/ledgersaga"
)

const recordColumns = `id, domain, source, destination, amount, quantity, progress, cancel, revert, ts, rewards, meta`

// execer is the subset of pgx shared by the pool and a transaction for
// writes.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// CreateRecord implements the ledgersaga.RecordStore interface for Store.
func (s *Store) CreateRecord(ctx context.Context, rec *ledgersaga.Record) error {
	return insertRecord(ctx, s.db, rec)
}

func insertRecord(ctx context.Context, q execer, rec *ledgersaga.Record) error {
	source, err := json.Marshal(rec.Source)
	if err != nil {
		return fmt.Errorf("marshal source: %w", err)
	}
	var destination []byte
	if rec.Destination != nil {
		if destination, err = json.Marshal(rec.Destination); err != nil {
			return fmt.Errorf("marshal destination: %w", err)
		}
	}
	var rewards []byte
	if rec.Rewards != nil {
		if rewards, err = json.Marshal(rec.Rewards); err != nil {
			return fmt.Errorf("marshal rewards: %w", err)
		}
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, int(rec.Domain), source, destination, rec.Amount, rec.Quantity,
		int(rec.Progress), int(rec.Cancel), int(rec.Revert), rec.Timestamp, rewards, meta)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord implements the ledgersaga.RecordStore interface for Store.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (*ledgersaga.Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledgersaga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*ledgersaga.Record, error) {
	var (
		rec                 ledgersaga.Record
		domain, progress    int
		cancel, revert      int
		source, destination []byte
		rewards, meta       []byte
	)
	if err := row.Scan(&rec.ID, &domain, &source, &destination, &rec.Amount, &rec.Quantity,
		&progress, &cancel, &revert, &rec.Timestamp, &rewards, &meta); err != nil {
		return nil, err
	}
	rec.Domain = ledgersaga.Domain(domain)
	rec.Progress = ledgersaga.ProgressStatus(progress)
	rec.Cancel = ledgersaga.CancelStatus(cancel)
	rec.Revert = ledgersaga.RevertStatus(revert)

	if err := json.Unmarshal(source, &rec.Source); err != nil {
		return nil, fmt.Errorf("unmarshal source: %w", err)
	}
	if destination != nil {
		rec.Destination = &ledgersaga.AccountRef{}
		if err := json.Unmarshal(destination, rec.Destination); err != nil {
			return nil, fmt.Errorf("unmarshal destination: %w", err)
		}
	}
	if rewards != nil {
		if err := json.Unmarshal(rewards, &rec.Rewards); err != nil {
			return nil, fmt.Errorf("unmarshal rewards: %w", err)
		}
	}
	if meta != nil {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return &rec, nil
}

func (s *Store) recordDomain(ctx context.Context, id uuid.UUID) (ledgersaga.Domain, error) {
	var domain int
	err := s.db.QueryRow(ctx, `SELECT domain FROM records WHERE id = $1`, id).Scan(&domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ledgersaga.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get record domain: %w", err)
	}
	return ledgersaga.Domain(domain), nil
}

// AdvanceProgress implements the ledgersaga.RecordStore interface for Store.
// The constant values of a domain's progress ordering ascend, so the guard
// reduces to an integer comparison once the target is known to belong to the
// domain's table.
func (s *Store) AdvanceProgress(ctx context.Context, id uuid.UUID, target ledgersaga.ProgressStatus) (bool, error) {
	domain, err := s.recordDomain(ctx, id)
	if err != nil {
		return false, err
	}
	if !ledgersaga.ValidProgressTarget(domain, target) {
		return false, nil
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE records SET progress = $2, ts = $3
		WHERE id = $1 AND progress < $2 AND cancel = 0 AND revert = 0`,
		id, int(target), s.now())
	if err != nil {
		return false, fmt.Errorf("advance progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceCancel implements the ledgersaga.RecordStore interface for Store.
func (s *Store) AdvanceCancel(ctx context.Context, id uuid.UUID, target ledgersaga.CancelStatus, olderThan time.Time) (bool, error) {
	if target == ledgersaga.CancelNone {
		return false, nil
	}

	query := `
		UPDATE records SET cancel = $2, ts = $3
		WHERE id = $1 AND cancel < $2 AND revert <= $4`
	args := []any{id, int(target), s.now(), int(ledgersaga.MaxRevertFor(target))}

	if target == ledgersaga.CancelInitial {
		domain, err := s.recordDomain(ctx, id)
		if err != nil {
			return false, err
		}
		query += ` AND progress < $5`
		args = append(args, int(ledgersaga.SweepCeiling(domain)))
		if !olderThan.IsZero() {
			query += ` AND ts <= $6`
			args = append(args, olderThan)
		}
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("advance cancel: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AdvanceRevert implements the ledgersaga.RecordStore interface for Store.
func (s *Store) AdvanceRevert(ctx context.Context, id uuid.UUID, target ledgersaga.RevertStatus) (bool, error) {
	if target == ledgersaga.RevertNone {
		return false, nil
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE records SET revert = $2, ts = $3
		WHERE id = $1 AND revert < $2 AND cancel > 0`,
		id, int(target), s.now())
	if err != nil {
		return false, fmt.Errorf("advance revert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RegressProgress implements the ledgersaga.RecordStore interface for Store.
func (s *Store) RegressProgress(ctx context.Context, id uuid.UUID, to ledgersaga.ProgressStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE records SET progress = $2, ts = $3
		WHERE id = $1 AND cancel > 0 AND progress > $2`,
		id, int(to), s.now())
	if err != nil {
		return false, fmt.Errorf("regress progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AccrueReward implements the ledgersaga.RecordStore interface for Store.
func (s *Store) AccrueReward(ctx context.Context, id uuid.UUID, kind ledgersaga.RewardKind, qty int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("accrue reward: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT rewards FROM records WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledgersaga.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("accrue reward: %w", err)
	}

	rewards := map[ledgersaga.RewardKind]int64{}
	if raw != nil {
		if err := json.Unmarshal(raw, &rewards); err != nil {
			return fmt.Errorf("accrue reward: unmarshal: %w", err)
		}
	}
	rewards[kind] += qty

	updated, err := json.Marshal(rewards)
	if err != nil {
		return fmt.Errorf("accrue reward: marshal: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE records SET rewards = $2 WHERE id = $1`, id, updated); err != nil {
		return fmt.Errorf("accrue reward: %w", err)
	}
	return tx.Commit(ctx)
}

// SweepStuck implements the ledgersaga.RecordStore interface for Store. The
// (domain, ts) index serves the scan. Records at or past the domain's sweep
// ceiling rest at a milestone and never count as stuck.
func (s *Store) SweepStuck(ctx context.Context, domain ledgersaga.Domain, olderThan time.Time) ([]*ledgersaga.Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE domain = $1 AND ts < $2 AND progress < $3 AND cancel < $4
		ORDER BY ts`,
		int(domain), olderThan, int(ledgersaga.SweepCeiling(domain)), int(ledgersaga.Canceled))
	if err != nil {
		return nil, fmt.Errorf("sweep stuck: %w", err)
	}
	defer rows.Close()

	var stuck []*ledgersaga.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sweep stuck: %w", err)
		}
		stuck = append(stuck, rec)
	}
	return stuck, rows.Err()
}
