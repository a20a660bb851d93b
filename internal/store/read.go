package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/chash/internal/records"
)

// ListRuns returns all archived runs, oldest first.
//
// Returns an empty slice (not nil) if the archive has no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, source, commands, skipped, finished, locks_acquired, locks_released
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a single run. Returns ErrRunNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, source, commands, skipped, finished, locks_acquired, locks_released
		FROM runs
		WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReadEntries returns the entries of a run in seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEntries(ctx context.Context, runID string, filter EntryFilter) ([]Entry, error) {
	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Task != 0 {
		where = append(where, "task = ?")
		args = append(args, filter.Task)
	}

	query := `
		SELECT seq, micros, task, event, hash, name, value
		FROM entries
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e      Entry
			micros int64
			hash   int64
		)
		if err := rows.Scan(&e.Seq, &micros, &e.Task, &e.Event, &hash, &e.Name, &e.Value); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Micros = uint64(micros)
		e.Hash = uint32(hash)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// ReadSnapshot returns the archived final snapshot of a run in stored order.
func (s *Store) ReadSnapshot(ctx context.Context, runID string) ([]records.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, name, salary
		FROM snapshots
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	recs := []records.Record{}
	for rows.Next() {
		var (
			r    records.Record
			hash int64
		)
		if err := rows.Scan(&hash, &r.Name, &r.Salary); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		r.Hash = uint32(hash)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return recs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run       Run
		startedAt int64
		finished  int
	)
	err := row.Scan(
		&run.ID,
		&startedAt,
		&run.Source,
		&run.Commands,
		&run.Skipped,
		&finished,
		&run.LocksAcquired,
		&run.LocksReleased,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMicro(startedAt).UTC()
	run.Finished = finished != 0
	return run, nil
}
