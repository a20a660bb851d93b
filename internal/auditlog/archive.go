package auditlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/chash/internal/records"
	"github.com/roach88/chash/internal/store"
)

// archiveBatch bounds how many entries go into one SQLite transaction.
const archiveBatch = 128

type archiveItem struct {
	entry    *store.Entry
	snapshot []records.Record
}

// ArchiveSink copies the audit trail of one run into the SQLite archive.
//
// Entries travel through a buffered channel to a single writer goroutine so
// that critical sections never wait on disk I/O. The channel preserves log
// order. After a write error the goroutine keeps draining the channel so
// appenders never block, and Close reports the first error.
type ArchiveSink struct {
	st     *store.Store
	runID  string
	items  chan archiveItem
	done   chan struct{}
	logger *slog.Logger

	once sync.Once
	err  error
}

// NewArchiveSink starts the writer goroutine for runID.
// The run row must already exist in st.
func NewArchiveSink(ctx context.Context, st *store.Store, runID string, logger *slog.Logger) *ArchiveSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a := &ArchiveSink{
		st:     st,
		runID:  runID,
		items:  make(chan archiveItem, 4*archiveBatch),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run(ctx)
	return a
}

// Write queues an entry.
func (a *ArchiveSink) Write(e Entry) {
	se := store.Entry{
		Seq:    e.Seq,
		Micros: e.Micros,
		Task:   e.Task,
		Event:  string(e.Event),
		Hash:   e.Hash,
		Name:   e.Name,
		Value:  e.Value,
	}
	a.items <- archiveItem{entry: &se}
}

// WriteSnapshot queues the final snapshot behind every entry written so far.
func (a *ArchiveSink) WriteSnapshot(recs []records.Record) {
	cp := make([]records.Record, len(recs))
	copy(cp, recs)
	a.items <- archiveItem{snapshot: cp}
}

// Close drains the queue, waits for the writer and returns its first error.
func (a *ArchiveSink) Close() error {
	a.once.Do(func() { close(a.items) })
	<-a.done
	return a.err
}

func (a *ArchiveSink) run(ctx context.Context) {
	defer close(a.done)

	batch := make([]store.Entry, 0, archiveBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if a.err == nil {
			if err := a.st.WriteEntries(ctx, a.runID, batch); err != nil {
				a.fail(err)
			}
		}
		batch = batch[:0]
	}

	for item := range a.items {
		if item.entry != nil {
			batch = append(batch, *item.entry)
		}
		if item.snapshot != nil {
			flush()
			if a.err == nil {
				if err := a.st.WriteSnapshot(ctx, a.runID, item.snapshot); err != nil {
					a.fail(err)
				}
			}
			continue
		}
		// Keep filling the batch while more items are immediately available.
		if len(batch) < archiveBatch && len(a.items) > 0 {
			continue
		}
		flush()
	}
	flush()
}

func (a *ArchiveSink) fail(err error) {
	a.err = fmt.Errorf("archive run %s: %w", a.runID, err)
	a.logger.Error("audit archive write failed", "run", a.runID, "error", err)
}
