package auditlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/roach88/chash/internal/records"
)

// Clock supplies entry timestamps in microseconds.
// Implementations must never go backwards.
type Clock interface {
	NowMicros() uint64
}

// Sink receives every appended entry in log order.
// Write is called with the log mutex held and must not block for long.
type Sink interface {
	Write(e Entry)
	Close() error
}

// SnapshotSink is implemented by sinks that also keep the final snapshot.
type SnapshotSink interface {
	WriteSnapshot(recs []records.Record)
}

// Log is the append-only audit trail.
type Log struct {
	mu     sync.Mutex
	w      *bufio.Writer
	owned  io.Closer
	clock  Clock
	sinks  []Sink
	seq    int64
	lines  int
	err    error
	closed bool
}

// New returns a log writing text lines to w. The caller keeps ownership of w.
func New(w io.Writer, clock Clock, sinks ...Sink) *Log {
	return &Log{
		w:     bufio.NewWriter(w),
		clock: clock,
		sinks: sinks,
	}
}

// Open creates (or truncates) the text log at path. A path of "-" writes to
// stdout. The returned log closes the file on Close.
func Open(path string, clock Clock, sinks ...Sink) (*Log, error) {
	if path == "-" {
		return New(os.Stdout, clock, sinks...), nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	l := New(f, clock, sinks...)
	l.owned = f
	return l, nil
}

// Append stamps e with the next sequence number and the current time, writes
// its line and forwards it to every sink. The stamped entry is returned.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	e.Micros = l.clock.NowMicros()
	l.writeLine(e.Line())
	for _, s := range l.sinks {
		s.Write(e)
	}
	return e
}

// Raw writes an untimestamped line, used for the final summary.
func (l *Log) Raw(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine(text)
}

// Snapshot writes one "hash,name,salary" line per record and hands the
// records to sinks that keep snapshots.
func (l *Log) Snapshot(recs []records.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range recs {
		l.writeLine(fmt.Sprintf("%d,%s,%d", r.Hash, r.Name, r.Salary))
	}
	for _, s := range l.sinks {
		if ss, ok := s.(SnapshotSink); ok {
			ss.WriteSnapshot(recs)
		}
	}
}

func (l *Log) writeLine(text string) {
	if l.err != nil {
		return
	}
	if _, err := l.w.WriteString(text); err != nil {
		l.err = err
		return
	}
	if err := l.w.WriteByte('\n'); err != nil {
		l.err = err
		return
	}
	l.lines++
}

// Lines returns the number of lines written so far.
func (l *Log) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Err returns the first text write error, if any.
func (l *Log) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close flushes the text log, closes every sink and, for logs created by
// Open, the underlying file. Close is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	errs := []error{l.err}
	if err := l.w.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush audit log: %w", err))
	}
	for _, s := range l.sinks {
		errs = append(errs, s.Close())
	}
	if l.owned != nil {
		errs = append(errs, l.owned.Close())
	}
	return errors.Join(errs...)
}
