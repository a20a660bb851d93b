package store

import (
	"context"
	"fmt"

	"github.com/roach88/chash/internal/records"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, source, commands, skipped)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UnixMicro(),
		run.Source,
		run.Commands,
		run.Skipped,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun marks a run as complete and records its final lock counters.
func (s *Store) FinishRun(ctx context.Context, runID string, acquired, released int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished = 1, locks_acquired = ?, locks_released = ?
		WHERE id = ?
	`, acquired, released, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// WriteEntries appends a batch of entries for a run in one transaction.
// Note: The run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEntries(ctx context.Context, runID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write entries: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (run_id, seq, micros, task, event, hash, name, value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write entries: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			runID,
			e.Seq,
			int64(e.Micros),
			e.Task,
			e.Event,
			int64(e.Hash),
			e.Name,
			e.Value,
		); err != nil {
			return fmt.Errorf("write entries: seq %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write entries: commit: %w", err)
	}
	return nil
}

// WriteSnapshot replaces the archived snapshot of a run.
// Records are stored in the given order.
func (s *Store) WriteSnapshot(ctx context.Context, runID string, recs []records.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("write snapshot: clear: %w", err)
	}

	for i, r := range recs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (run_id, position, hash, name, salary)
			VALUES (?, ?, ?, ?, ?)
		`, runID, i, int64(r.Hash), r.Name, r.Salary); err != nil {
			return fmt.Errorf("write snapshot: %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write snapshot: commit: %w", err)
	}
	return nil
}
